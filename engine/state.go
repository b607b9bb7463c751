package engine

import (
	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/conn"
	"github.com/burntcarrot/docsync/ot"
)

// pendingQueue holds local operations that were sent but not yet echoed back
// by the server, oldest first. Only the head is ever compared.
type pendingQueue struct {
	ops []commons.Operation
}

func (q *pendingQueue) push(op commons.Operation) {
	q.ops = append(q.ops, op)
}

func (q *pendingQueue) head() (commons.Operation, bool) {
	if len(q.ops) == 0 {
		return commons.Operation{}, false
	}
	return q.ops[0], true
}

func (q *pendingQueue) pop() {
	if len(q.ops) == 0 {
		return
	}
	q.ops[0] = commons.Operation{}
	q.ops = q.ops[1:]
}

func (q *pendingQueue) clear() {
	q.ops = nil
}

func (q *pendingQueue) len() int {
	return len(q.ops)
}

// Outcome reports what ApplyRemote did with an inbound operation.
type Outcome int

const (
	// OutcomeEcho means the op was the server's echo of the pending head.
	OutcomeEcho Outcome = iota
	// OutcomeApplied means a remote op was applied to the content.
	OutcomeApplied
	// OutcomeBuffered means the op was held back until the running resync lands.
	OutcomeBuffered
	// OutcomeResync means the op could not be applied and a resync is needed.
	OutcomeResync
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEcho:
		return "echo"
	case OutcomeApplied:
		return "applied"
	case OutcomeBuffered:
		return "buffered"
	case OutcomeResync:
		return "resync"
	}
	return "unknown"
}

// ReadyResult reports what Ready did with a new baseline.
type ReadyResult struct {
	// Drift is set when the local content differed from the server's.
	Drift bool
	// Discarded is the number of pending operations that were dropped.
	Discarded int
	// Resync is set when the baseline could not be established locally.
	Resync bool
}

// State is the document state of one client: content, the version it
// belongs to, the caret, and the queue of unconfirmed local operations.
//
// State is not safe for concurrent use. The Controller owns it and mutates
// it from its event loop only.
type State struct {
	content string
	version uint64
	caret   int
	pending pendingQueue

	// resync bookkeeping: gen identifies the newest fetch, buffered holds
	// inbound ops that arrived while it was in flight, floor is the lowest
	// version an accepted snapshot may carry.
	resyncing bool
	gen       uint64
	buffered  []commons.Operation
	floor     uint64

	// diverged is set while content holds changes that neither the version
	// nor the pending queue accounts for. Only a snapshot clears it.
	diverged bool
}

// NewState returns a state holding content at version.
func NewState(content string, version uint64) *State {
	return &State{
		content: content,
		version: version,
	}
}

// Content returns the local copy of the document.
func (s *State) Content() string {
	return s.content
}

// Version returns the server version the content was last based on.
func (s *State) Version() uint64 {
	return s.version
}

// Caret returns the caret as a UTF-16 offset into the content.
func (s *State) Caret() int {
	return s.caret
}

// Pending returns the number of unconfirmed local operations.
func (s *State) Pending() int {
	return s.pending.len()
}

// PendingOps returns a copy of the pending queue, oldest first.
func (s *State) PendingOps() []commons.Operation {
	if s.pending.len() == 0 {
		return nil
	}
	return append([]commons.Operation(nil), s.pending.ops...)
}

// Resyncing reports whether a resync fetch is outstanding.
func (s *State) Resyncing() bool {
	return s.resyncing
}

// Diverged reports whether the content has local changes that were never
// sent and can no longer be. Nothing is sent until a snapshot lands.
func (s *State) Diverged() bool {
	return s.diverged
}

// MoveCaret records a caret move made by the user.
func (s *State) MoveCaret(caret int) {
	s.caret = s.clamp(caret)
}

// LocalEdit records that the user changed base to content, leaving the caret
// at caret. base is the text the user was looking at; when remote changes
// landed after it was shown, the edit is rebased over them so they are never
// undone. It returns the operations to transmit, each tagged with the current
// version, and queues them as pending. The version does not change.
//
// While a resync is running, or after one failed with unsent edits, the edit
// is applied but nothing is queued or returned: only a snapshot can bring the
// content back in line with a version.
func (s *State) LocalEdit(base, content string, caret int) []commons.Operation {
	ops := ot.Diff(base, content)
	if base != s.content {
		var remote []commons.Operation
		ops, remote = ot.Transform(ops, ot.Diff(base, s.content))
		for _, op := range remote {
			caret = ot.TransformCaret(caret, op)
		}
	}
	if len(ops) == 0 {
		s.caret = s.clamp(caret)
		return nil
	}

	for i := range ops {
		ops[i].Version = s.version
	}
	next, err := ot.ApplyAll(s.content, ops)
	if err != nil {
		// the edit is dropped and the surface shows our content again
		return nil
	}
	s.content = next
	s.caret = s.clamp(caret)

	if s.resyncing || s.diverged {
		s.diverged = true
		return nil
	}
	for _, op := range ops {
		s.pending.push(op)
	}
	return ops
}

// ApplyRemote processes an operation received from the server.
func (s *State) ApplyRemote(op commons.Operation) Outcome {
	if s.resyncing {
		s.buffered = append(s.buffered, op)
		return OutcomeBuffered
	}
	if s.diverged {
		return OutcomeResync
	}
	return s.applyRemote(op)
}

func (s *State) applyRemote(op commons.Operation) Outcome {
	// an undo applies to server state this client cannot reconstruct
	if op.Type == commons.OpUndo {
		return OutcomeResync
	}

	if head, ok := s.pending.head(); ok && head.SameShape(op) {
		s.pending.pop()
		s.version = op.Version
		return OutcomeEcho
	}

	content, err := ot.Apply(s.content, op)
	if err != nil {
		return OutcomeResync
	}
	s.content = content
	s.caret = ot.TransformCaret(s.caret, op)
	s.version = op.Version
	return OutcomeApplied
}

// BeginResync discards the pending queue and marks a fetch as outstanding. It
// returns the generation that FinishResync or FailResync must present; any
// earlier generation is stale from now on.
func (s *State) BeginResync() uint64 {
	if s.pending.len() > 0 {
		s.diverged = true
	}
	s.pending.clear()
	s.resyncing = true
	s.gen++
	return s.gen
}

// FinishResync replaces the content with snapshot when gen is the newest
// fetch, then replays buffered ops newer than the snapshot in arrival order.
// applied is false for a stale result. again is set when the result cannot
// serve as a baseline and another fetch is needed.
func (s *State) FinishResync(gen uint64, snapshot commons.Snapshot) (applied, again bool) {
	if !s.resyncing || gen != s.gen {
		return false, false
	}
	if snapshot.Version < s.floor {
		return false, true
	}

	s.resyncing = false
	s.adopt(snapshot)
	return true, s.replay()
}

// FailResync ends the fetch gen without a snapshot. The buffered ops are
// dropped since there is no baseline to apply them to. Content that diverged
// stays diverged until a later snapshot. It returns false for a stale
// generation.
func (s *State) FailResync(gen uint64) bool {
	if !s.resyncing || gen != s.gen {
		return false
	}
	s.resyncing = false
	s.buffered = nil
	return true
}

// AdoptSnapshot replaces the state with a snapshot pushed by the server. A
// running resync is superseded. It returns true when a buffered op could not
// be replayed and a resync is needed.
func (s *State) AdoptSnapshot(snapshot commons.Snapshot) bool {
	s.pending.clear()
	if s.resyncing {
		s.resyncing = false
		s.gen++
	}
	s.adopt(snapshot)
	return s.replay()
}

// Ready starts a new baseline after a handshake. The pending queue is always
// discarded. Content carried by the handshake is adopted; without content the
// local copy is kept only when it is known to match the announced version.
func (s *State) Ready(initial conn.InitialState) ReadyResult {
	res := ReadyResult{Discarded: s.pending.len()}
	s.pending.clear()

	if initial.Content != nil {
		res.Drift = s.content != *initial.Content
		if s.resyncing {
			s.resyncing = false
			s.gen++
		}
		s.buffered = nil
		s.floor = initial.Version
		s.adopt(commons.Snapshot{Content: *initial.Content, Version: initial.Version})
		return res
	}

	s.floor = initial.Version
	if res.Discarded > 0 {
		s.diverged = true
	}
	if !s.resyncing && !s.diverged && initial.Version == s.version {
		return res
	}

	// ops buffered before the handshake belong to the previous session
	s.buffered = nil
	res.Resync = true
	return res
}

// Reset empties the state for a different document. Outstanding fetches
// become stale.
func (s *State) Reset() {
	s.content = ""
	s.version = 0
	s.caret = 0
	s.pending.clear()
	s.resyncing = false
	s.gen++
	s.buffered = nil
	s.floor = 0
	s.diverged = false
}

func (s *State) adopt(snapshot commons.Snapshot) {
	s.content = snapshot.Content
	s.version = snapshot.Version
	s.diverged = false
	s.caret = s.clamp(s.caret)
}

// replay applies the buffered ops that are newer than the current version.
func (s *State) replay() bool {
	buffered := s.buffered
	s.buffered = nil

	for _, op := range buffered {
		if op.Version <= s.version {
			continue
		}
		if s.applyRemote(op) == OutcomeResync {
			return true
		}
	}
	return false
}

func (s *State) clamp(caret int) int {
	if caret < 0 {
		return 0
	}
	if n := ot.Len(s.content); caret > n {
		return n
	}
	return caret
}
