// Package engine keeps a client's copy of a document in step with the server.
//
// State is the synchronous core: local edits become pending operations,
// inbound operations are matched against the pending head or applied, and
// conflicts fall back to a snapshot. Controller drives a State from a single
// event loop, owns the connection, and runs the resync fetches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/conn"
	"github.com/sirupsen/logrus"
)

// DocumentStore fetches the authoritative copy of a document.
type DocumentStore interface {
	FetchDocument(ctx context.Context, id string) (commons.Document, error)
}

// View is what the surface shows.
type View struct {
	DocID     string
	Title     string
	Content   string
	Caret     int
	Version   uint64
	Status    conn.Status
	Pending   int
	Resyncing bool

	// Edits is the number of Edit calls processed so far. A view with fewer
	// edits than the surface has made predates some of its typing.
	Edits uint64
}

// Surface displays the document. Both methods are called from the
// controller's event loop only.
type Surface interface {
	Render(view View)
	ReportError(err error)
}

// Config holds the controller settings.
type Config struct {
	Conn conn.Config

	// FetchTimeout bounds a single resync fetch.
	FetchTimeout time.Duration

	// EventBuffer is the capacity of the event queue.
	EventBuffer int

	Logger logrus.FieldLogger
}

// DefaultConfig returns the default settings for a server at endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Conn:         conn.DefaultConfig(endpoint),
		FetchTimeout: 10 * time.Second,
		EventBuffer:  256,
	}
}

// session is the part of conn.Manager the controller uses.
type session interface {
	Open(ctx context.Context)
	Close()
	Send(op commons.Operation) bool
}

func newManager(cfg conn.Config, docID, token string, h conn.Handler) session {
	return conn.New(cfg, docID, token, h)
}

// Controller synchronizes one document at a time.
type Controller struct {
	cfg     Config
	token   string
	store   DocumentStore
	surface Surface
	log     logrus.FieldLogger

	newSession func(cfg conn.Config, docID, token string, h conn.Handler) session

	events  chan event
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
	running atomic.Bool

	// owned by the event loop
	ctx         context.Context
	docID       string
	title       string
	state       *State
	status      conn.Status
	sess        session
	sessID      uint64
	sessCancel  context.CancelFunc
	fetchCancel context.CancelFunc
	edits       uint64
}

// New returns a controller for docID. Nothing happens until Run is called.
func New(cfg Config, docID, token string, store DocumentStore, surface Surface) *Controller {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Conn.Logger == nil {
		cfg.Conn.Logger = cfg.Logger
	}

	return &Controller{
		cfg:        cfg,
		token:      token,
		store:      store,
		surface:    surface,
		log:        cfg.Logger,
		newSession: newManager,
		events:     make(chan event, cfg.EventBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		docID:      docID,
		state:      NewState("", 0),
		status:     conn.StatusClosed,
	}
}

// Run loads the document, connects, and processes events until ctx is done
// or Close is called. The session and any running fetch are torn down before
// Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller is already running")
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	c.start()
	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Close stops Run and waits for it to return.
func (c *Controller) Close() {
	c.stop.Do(func() {
		close(c.quit)
	})
	if c.running.Load() {
		<-c.done
	}
}

// Edit reports that the user changed base, the text they were looking at, to
// content with the caret at caret, a UTF-16 offset into content. Remote
// changes the user had not seen yet are kept.
func (c *Controller) Edit(base, content string, caret int) {
	c.post(editEvent{base: base, content: content, caret: caret})
}

// MoveCaret reports a caret move that did not change the content.
func (c *Controller) MoveCaret(caret int) {
	c.post(caretEvent{caret: caret})
}

// Undo asks the server to revert this client's last operation.
func (c *Controller) Undo() {
	c.post(undoEvent{})
}

// Switch moves the controller to another document.
func (c *Controller) Switch(docID string) {
	c.post(switchEvent{docID: docID})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// start opens a session for the current document and fetches its content.
func (c *Controller) start() {
	c.log.WithField("doc", c.docID).Infof("starting session")

	c.sessID++
	sessCtx, cancel := context.WithCancel(c.ctx)
	c.sessCancel = cancel

	h := &sessionHandler{
		events: c.events,
		ctx:    sessCtx,
		id:     c.sessID,
	}
	c.sess = c.newSession(c.cfg.Conn, c.docID, c.token, h)
	c.sess.Open(sessCtx)

	c.resync("initial load")
}

// teardown closes the session and cancels the running fetch.
func (c *Controller) teardown() {
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
	if c.sess != nil {
		// unblock the session's handler before waiting for it
		c.sessCancel()
		c.sess.Close()
		c.sess = nil
	}
	c.status = conn.StatusClosed
}

func (c *Controller) resync(reason string) {
	gen := c.state.BeginResync()
	c.log.WithFields(logrus.Fields{"doc": c.docID, "gen": gen}).Infof("resync: %s", reason)

	if c.fetchCancel != nil {
		c.fetchCancel()
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.FetchTimeout)
	c.fetchCancel = cancel

	docID := c.docID
	go func() {
		defer cancel()
		doc, err := c.store.FetchDocument(ctx, docID)

		select {
		case c.events <- fetchEvent{gen: gen, docID: docID, doc: doc, err: err}:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case editEvent:
		c.handleEdit(ev)
	case caretEvent:
		c.state.MoveCaret(ev.caret)
	case undoEvent:
		c.handleUndo()
	case switchEvent:
		c.handleSwitch(ev)
	case fetchEvent:
		c.handleFetch(ev)
	case sessionEvent:
		if ev.session() != c.sessID {
			c.log.Debugf("dropping event from an old session")
			return
		}
		c.handleSession(ev)
	}
	c.render()
}

func (c *Controller) handleEdit(ev editEvent) {
	c.edits++
	ops := c.state.LocalEdit(ev.base, ev.content, ev.caret)
	if ops == nil && c.state.Diverged() && !c.state.Resyncing() {
		c.resync("local edits are not based on a server version")
		return
	}
	for _, op := range ops {
		c.log.WithField("version", op.Version).Debugf("local %v", op)
		if !c.sess.Send(op) {
			c.log.Debugf("session not open, %v stays pending", op)
		}
	}
}

func (c *Controller) handleUndo() {
	if c.status != conn.StatusOpen {
		c.log.Infof("undo ignored while %s", c.status)
		return
	}
	c.sess.Send(commons.Undo())
}

func (c *Controller) handleSwitch(ev switchEvent) {
	if ev.docID == c.docID {
		return
	}
	c.log.Infof("switching from %s to %s", c.docID, ev.docID)

	c.teardown()
	c.state.Reset()
	c.docID = ev.docID
	c.title = ""
	c.start()
}

func (c *Controller) handleFetch(ev fetchEvent) {
	if ev.err != nil {
		if !c.state.FailResync(ev.gen) {
			return
		}
		c.fetchCancel = nil
		c.log.Errorf("resync failed: %v", ev.err)
		c.surface.ReportError(&commons.Error{
			Code:    commons.CodeResyncFailed,
			Message: fmt.Sprintf("could not load document %s", c.docID),
			Err:     ev.err,
		})
		return
	}

	// the title is not versioned, a superseded fetch still carries it
	if ev.docID == c.docID {
		c.title = ev.doc.Title
	}

	applied, again := c.state.FinishResync(ev.gen, ev.doc.Snapshot())
	if applied {
		c.fetchCancel = nil
		c.log.WithField("version", c.state.Version()).Infof("resync complete")
	}
	if again {
		c.resync("snapshot older than the server's version")
	}
}

func (c *Controller) handleSession(ev sessionEvent) {
	switch ev := ev.(type) {
	case statusEvent:
		c.status = ev.status

	case readyEvent:
		res := c.state.Ready(ev.state)
		if res.Drift {
			c.log.Warnf("local content drifted from version %d, replacing", ev.state.Version)
		}
		if res.Discarded > 0 {
			c.log.Warnf("discarded %d unconfirmed operations", res.Discarded)
		}
		if res.Resync {
			c.resync("new baseline")
		}

	case opEvent:
		outcome := c.state.ApplyRemote(ev.op)
		c.log.WithField("version", ev.op.Version).Debugf("remote %v: %s", ev.op, outcome)
		if outcome == OutcomeResync {
			c.resync(fmt.Sprintf("cannot apply %v", ev.op))
		}

	case outOfSyncEvent:
		c.log.Warnf("out of sync, adopting version %d", ev.snapshot.Version)
		if c.state.AdoptSnapshot(ev.snapshot) {
			c.resync("cannot replay buffered operations")
		}

	case errorEvent:
		if ev.err.Code == commons.CodeConflict {
			c.log.Warnf("conflict: %v", ev.err)
			c.resync("conflict")
		}
		c.surface.ReportError(ev.err)
	}
}

func (c *Controller) render() {
	c.surface.Render(View{
		DocID:     c.docID,
		Title:     c.title,
		Content:   c.state.Content(),
		Caret:     c.state.Caret(),
		Version:   c.state.Version(),
		Status:    c.status,
		Pending:   c.state.Pending(),
		Resyncing: c.state.Resyncing(),
		Edits:     c.edits,
	})
}
