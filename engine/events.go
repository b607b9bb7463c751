package engine

import (
	"context"

	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/conn"
)

type event interface{}

type editEvent struct {
	base    string
	content string
	caret   int
}

type caretEvent struct {
	caret int
}

type undoEvent struct{}

type switchEvent struct {
	docID string
}

type fetchEvent struct {
	gen   uint64
	docID string
	doc   commons.Document
	err   error
}

// sessionEvent is an event raised by a connection session.
type sessionEvent interface {
	session() uint64
}

type sessionTag uint64

func (t sessionTag) session() uint64 { return uint64(t) }

type statusEvent struct {
	sessionTag
	status conn.Status
}

type readyEvent struct {
	sessionTag
	state conn.InitialState
}

type opEvent struct {
	sessionTag
	op commons.Operation
}

type outOfSyncEvent struct {
	sessionTag
	snapshot commons.Snapshot
}

type errorEvent struct {
	sessionTag
	err *commons.Error
}

// sessionHandler forwards the callbacks of one session into the event loop.
// Once ctx is done the session is being torn down and events are dropped, so
// the session never blocks on a loop that is waiting for it to stop.
type sessionHandler struct {
	events chan<- event
	ctx    context.Context
	id     uint64
}

func (h *sessionHandler) enqueue(ev event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

func (h *sessionHandler) OnStatus(status conn.Status) {
	h.enqueue(statusEvent{sessionTag(h.id), status})
}

func (h *sessionHandler) OnReady(state conn.InitialState) {
	h.enqueue(readyEvent{sessionTag(h.id), state})
}

func (h *sessionHandler) OnOperation(op commons.Operation) {
	h.enqueue(opEvent{sessionTag(h.id), op})
}

func (h *sessionHandler) OnOutOfSync(snapshot commons.Snapshot) {
	h.enqueue(outOfSyncEvent{sessionTag(h.id), snapshot})
}

func (h *sessionHandler) OnError(err *commons.Error) {
	h.enqueue(errorEvent{sessionTag(h.id), err})
}
