package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ClientIDHeader carries the manager's client id on the handshake request.
const ClientIDHeader = "X-Client-Id"

var errHandshakeTimeout = errors.New("handshake timeout")

// Manager owns the single WebSocket session for one document.
type Manager struct {
	cfg      Config
	docID    string
	token    string
	clientID uuid.UUID
	handler  Handler
	log      logrus.FieldLogger

	mu     sync.Mutex
	status Status
	out    chan []byte // outbound frames of the open session, nil otherwise
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a manager for docID. Nothing is dialed until Open is called.
func New(cfg Config, docID, token string, handler Handler) *Manager {
	cfg = cfg.withDefaults()
	clientID := uuid.New()

	return &Manager{
		cfg:      cfg,
		docID:    docID,
		token:    token,
		clientID: clientID,
		handler:  handler,
		status:   StatusClosed,
		log: cfg.Logger.WithFields(logrus.Fields{
			"doc":    docID,
			"client": clientID.String(),
		}),
	}
}

// ClientID returns the id sent with every handshake of this manager.
func (m *Manager) ClientID() uuid.UUID {
	return m.clientID
}

// Status returns the session status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Open starts the session. A session that is already running is closed first,
// so there is never more than one.
func (m *Manager) Open(ctx context.Context) {
	m.Close()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx)
	}()
}

// Close ends the session with a clean close and waits for it to stop. No
// handler calls are made after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Send queues op for the server. It returns false when the session is not
// open; the caller decides what to do with the operation.
func (m *Manager) Send(op commons.Operation) bool {
	data, err := json.Marshal(op)
	if err != nil {
		m.log.Errorf("failed to encode %v: %v", op, err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusOpen || m.out == nil {
		return false
	}

	select {
	case m.out <- data:
		return true
	default:
		m.log.Warnf("send buffer full, dropping %v", op)
		return false
	}
}

func (m *Manager) setStatus(status Status, out chan []byte) {
	m.mu.Lock()
	changed := m.status != status
	m.status = status
	m.out = out
	m.mu.Unlock()

	if changed {
		m.log.Infof("status %s", status)
		m.handler.OnStatus(status)
	}
}

func (m *Manager) newBackOff() backoff.BackOff {
	if m.cfg.MaxRetries <= 0 {
		return &backoff.StopBackOff{}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.cfg.BackoffBase
	exp.MaxInterval = m.cfg.BackoffMax
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithMaxRetries(exp, uint64(m.cfg.MaxRetries))
}

// run dials sessions until the context ends, a clean close or fatal error
// happens, or the retry budget is spent.
func (m *Manager) run(ctx context.Context) {
	retry := m.newBackOff()

	for {
		m.setStatus(StatusConnecting, nil)

		reached, err := m.session(ctx)

		if ctx.Err() != nil {
			m.setStatus(StatusClosed, nil)
			return
		}

		var cerr *commons.Error
		if errors.As(err, &cerr) && cerr.Fatal() {
			m.log.Errorf("session ended: %v", cerr)
			m.setStatus(StatusClosed, nil)
			m.handler.OnError(cerr)
			return
		}

		if isCleanClose(err) {
			m.log.Infof("server closed the session")
			m.setStatus(StatusClosed, nil)
			return
		}

		if reached {
			retry.Reset()
		}

		m.setStatus(StatusClosed, nil)

		delay := retry.NextBackOff()
		if delay == backoff.Stop {
			m.log.Errorf("giving up after %d retries: %v", m.cfg.MaxRetries, err)
			m.handler.OnError(&commons.Error{
				Code:    commons.CodeConnectionFailed,
				Message: fmt.Sprintf("connection failed after %d attempts", m.cfg.MaxRetries+1),
				Err:     err,
			})
			return
		}

		m.log.Warnf("session lost (%v), reconnecting in %s", err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusClosed, nil)
			return
		case <-timer.C:
		}
	}
}

// session runs one transport connection. reached reports whether the
// session got as far as initial_state.
func (m *Manager) session(ctx context.Context) (reached bool, err error) {
	ws, err := m.dial(ctx)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, m.cfg.SendBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.writePump(sessionCtx, ws, out)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	ready := false

	ws.SetReadLimit(m.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	ws.SetPongHandler(func(string) error {
		if ready {
			return ws.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		}
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if !ready && errors.As(err, &netErr) && netErr.Timeout() {
				return false, errHandshakeTimeout
			}
			return ready, err
		}

		msg, err := commons.ParseServerMessage(data)
		if err != nil {
			m.log.Warnf("dropping malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case commons.InitialStateMessage:
			if !ready {
				ready = true
				m.setStatus(StatusOpen, out)
			}
			m.log.Debugf("initial state at version %d", msg.Version)
			m.handler.OnReady(InitialState{Content: msg.Content, Version: msg.Version})

		case commons.OperationMessage:
			if !ready {
				m.log.Warnf("dropping operation received before initial state")
				continue
			}
			m.log.Debugf("operation %v", *msg.Op)
			m.handler.OnOperation(*msg.Op)

		case commons.OutOfSyncMessage:
			if !ready {
				m.log.Warnf("dropping out_of_sync received before initial state")
				continue
			}
			m.handler.OnOutOfSync(commons.Snapshot{Content: *msg.Content, Version: msg.Version})

		case commons.ErrorMessage:
			e := msg.Err()
			if e.Fatal() {
				return ready, e
			}
			m.log.Warnf("server error: %v", e)
			m.handler.OnError(e)
		}

		if ready {
			_ = ws.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := m.url()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set(ClientIDHeader, m.clientID.String())

	ws, resp, err := m.cfg.Dialer.DialContext(dialCtx, target, header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, &commons.Error{Code: commons.CodeUnauthorized, Message: "handshake rejected", Err: err}
			case http.StatusForbidden:
				return nil, &commons.Error{Code: commons.CodeForbidden, Message: "handshake rejected", Err: err}
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errHandshakeTimeout
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	return ws, nil
}

// url builds the session URL: {endpoint}/ws/doc/{id}?token={token}.
func (m *Manager) url() (string, error) {
	target := strings.TrimSuffix(m.cfg.Endpoint, "/") +
		"/ws/doc/" + url.PathEscape(m.docID) +
		"?" + url.Values{"token": []string{m.token}}.Encode()

	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return target, nil
}

func (m *Manager) writePump(ctx context.Context, ws *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.cfg.WriteTimeout))
			ws.Close()
			return

		case data := <-out:
			_ = ws.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				// a websocket write deadline cannot be recovered
				m.log.Warnf("write error: %v", err)
				ws.Close()
				return
			}

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteTimeout)); err != nil {
				m.log.Warnf("ping error: %v", err)
				ws.Close()
				return
			}
		}
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
