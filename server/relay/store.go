package relay

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/ot"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrForbidden = errors.New("forbidden")
)

// entry is an accepted operation in a document's log.
type entry struct {
	op      commons.Operation
	client  uuid.UUID
	removed string // text removed by a delete, for undo
}

type document struct {
	commons.Document
	shares map[string]bool

	// log holds the most recent accepted operations, oldest first.
	log []entry
	// last maps a client to the version of its last undoable operation.
	last map[uuid.UUID]uint64
}

func (d *document) canAccess(user string) bool {
	return d.OwnerID == user || d.shares[user]
}

// Store keeps documents in memory.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*document
	logLimit int
}

// NewStore returns an empty store that keeps up to logLimit operations per
// document for stale-version checks and undo.
func NewStore(logLimit int) *Store {
	return &Store{
		docs:     make(map[string]*document),
		logLimit: logLimit,
	}
}

// Put adds or replaces a document.
func (s *Store) Put(doc commons.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.ID] = &document{
		Document: doc,
		shares:   make(map[string]bool),
		last:     make(map[uuid.UUID]uint64),
	}
}

// Create adds an empty document owned by owner.
func (s *Store) Create(owner, title string) commons.Document {
	doc := commons.Document{ID: uuid.NewString(), Title: title, OwnerID: owner}
	s.Put(doc)
	return doc
}

// Get returns the document id if user may open it.
func (s *Store) Get(id, user string) (commons.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return commons.Document{}, ErrNotFound
	}
	if !d.canAccess(user) {
		return commons.Document{}, ErrForbidden
	}
	return d.Document, nil
}

// List returns the documents user owns or was given access to, by title.
func (s *Store) List(user string) []commons.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := []commons.Document{}
	for _, d := range s.docs {
		if d.canAccess(user) {
			docs = append(docs, d.Document)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Title == docs[j].Title {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Title < docs[j].Title
	})
	return docs
}

// Share gives another user access. Only the owner may share.
func (s *Store) Share(id, owner, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	if d.OwnerID != owner {
		return ErrForbidden
	}
	d.shares[user] = true
	return nil
}

// outcome is the result of submitting an operation.
type outcome struct {
	// accepted is the operation as applied, carrying its new version.
	accepted *commons.Operation
	// reject is sent back to the submitting client only.
	reject *commons.ServerMessage
}

// submit applies op from client to document id.
//
// An op is accepted when it was issued at the current version, or at an older
// version when every operation accepted since then came from the same
// client: the client already had those applied locally, so its positions
// are valid for the current content. Anything else is a conflict.
func (s *Store) submit(id string, client uuid.UUID, op commons.Operation) outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return outcome{}
	}

	if op.Type == commons.OpUndo {
		return s.undo(d, client)
	}

	if !d.ownChain(client, op.Version) {
		return conflict(d, fmt.Sprintf("operation at version %d is stale", op.Version))
	}

	var removed string
	if op.Type == commons.OpDelete {
		removed = ot.Slice(d.Content, op.Pos, op.Pos+op.Len)
	}

	content, err := ot.Apply(d.Content, op)
	if err != nil {
		msg := commons.NewOutOfSync(d.Content, d.Version)
		return outcome{reject: &msg}
	}

	accepted := s.commit(d, client, op, content, removed)
	d.last[client] = accepted.Version
	return outcome{accepted: &accepted}
}

// undo reverts the client's last operation if nothing was accepted after it.
func (s *Store) undo(d *document, client uuid.UUID) outcome {
	version, ok := d.last[client]
	if !ok {
		return outcome{}
	}
	if version != d.Version || len(d.log) == 0 {
		delete(d.last, client)
		return conflict(d, "only the latest operation can be undone")
	}

	e := d.log[len(d.log)-1]
	var inverse commons.Operation
	switch e.op.Type {
	case commons.OpInsert:
		inverse = commons.Delete(e.op.Pos, ot.Len(e.op.Text))
	case commons.OpDelete:
		inverse = commons.Insert(e.op.Pos, e.removed)
	}

	content, err := ot.Apply(d.Content, inverse)
	if err != nil {
		return outcome{}
	}

	accepted := s.commit(d, client, inverse, content, e.op.Text)
	delete(d.last, client)
	return outcome{accepted: &accepted}
}

func (s *Store) commit(d *document, client uuid.UUID, op commons.Operation, content, removed string) commons.Operation {
	d.Content = content
	d.Version++
	op.Version = d.Version

	d.log = append(d.log, entry{op: op, client: client, removed: removed})
	if s.logLimit > 0 && len(d.log) > s.logLimit {
		d.log = append([]entry(nil), d.log[len(d.log)-s.logLimit:]...)
	}
	return op
}

// ownChain reports whether every op accepted after version came from client.
func (d *document) ownChain(client uuid.UUID, version uint64) bool {
	if version == d.Version {
		return true
	}
	if version > d.Version {
		return false
	}

	since := d.Version - version
	if since > uint64(len(d.log)) {
		return false
	}
	for _, e := range d.log[len(d.log)-int(since):] {
		if e.client != client {
			return false
		}
	}
	return true
}

// snapshot returns the document's content and version for a joining client.
func (s *Store) snapshot(id string) (commons.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return commons.Snapshot{}, false
	}
	return d.Snapshot(), true
}

func conflict(d *document, message string) outcome {
	current := d.Version
	msg := commons.NewErrorMessage(&commons.Error{
		Code:           commons.CodeConflict,
		Message:        message,
		CurrentVersion: &current,
	})
	return outcome{reject: &msg}
}
