package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/conn"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server serves the WebSocket endpoint and the document REST API.
type Server struct {
	cfg      Config
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
	router   *mux.Router
	log      logrus.FieldLogger
}

// New returns a server with an empty store. Run must be called before the
// handler accepts WebSocket sessions.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	store := NewStore(cfg.LogLimit)

	s := &Server{
		cfg:   cfg,
		store: store,
		hub:   newHub(store, cfg.AnnounceOnly, cfg.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: cfg.Logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/doc/{id}", s.handleConn).Methods(http.MethodGet)
	r.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/documents", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/share", s.handleShare).Methods(http.MethodPost)
	s.router = r

	return s
}

// Store returns the server's document store.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run runs the hub until ctx is done. Connected clients are sent a going
// away close.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// handleConn upgrades the request and attaches the connection to its
// document. Authorization failures are reported as error messages.
func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]

	user, authErr := authenticate(s.cfg.Secret, bearerToken(r))
	var doc commons.Document
	if authErr == nil {
		var err error
		doc, err = s.store.Get(docID, user)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		authErr = err
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("error upgrading connection to websocket: %v", err)
		return
	}

	if authErr != nil {
		code := commons.CodeUnauthorized
		if errors.Is(authErr, ErrForbidden) {
			code = commons.CodeForbidden
		}
		s.log.WithField("doc", docID).Warnf("rejecting session: %v", authErr)
		reject(ws, &commons.Error{Code: code, Message: authErr.Error()}, s.cfg.WriteTimeout)
		return
	}

	id, err := uuid.Parse(r.Header.Get(conn.ClientIDHeader))
	if err != nil {
		id = uuid.New()
	}

	c := &Client{
		id:    id,
		user:  user,
		docID: doc.ID,
		conn:  ws,
		send:  make(chan []byte, s.cfg.SendBuffer),
		log: s.log.WithFields(logrus.Fields{
			"doc":    doc.ID,
			"client": id.String(),
			"user":   user,
		}),
	}

	select {
	case s.hub.register <- c:
	case <-s.hub.stopped:
		ws.Close()
		return
	}

	go c.writePump(s.cfg)
	go c.readPump(s.hub, s.cfg)
}

func reject(ws *websocket.Conn, e *commons.Error, timeout time.Duration) {
	defer ws.Close()

	_ = ws.SetWriteDeadline(time.Now().Add(timeout))
	if err := ws.WriteJSON(commons.NewErrorMessage(e)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}

// user authenticates a REST request, writing a 401 when it fails.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := authenticate(s.cfg.Secret, bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return user, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	doc, err := s.store.Get(mux.Vars(r)["id"], user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.List(user))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var args struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil || args.Title == "" {
		http.Error(w, "a title is required", http.StatusBadRequest)
		return
	}

	doc := s.store.Create(user, args.Title)
	s.log.WithFields(logrus.Fields{"doc": doc.ID, "user": user}).Infof("created document %q", doc.Title)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var args struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil || args.Email == "" {
		http.Error(w, "an email is required", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.store.Share(id, user, args.Email); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("document shared with " + args.Email))
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
