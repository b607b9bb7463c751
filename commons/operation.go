package commons

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OpType represents the operation type.
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
	OpUndo   OpType = "undo"
)

var ErrInvalidOperation = errors.New("invalid operation")

// Operation represents a positional edit.
type Operation struct {
	// Type represents the operation type, for example, insert, delete.
	Type OpType `json:"type"`

	// Pos is the UTF-16 code unit offset at which the operation applies.
	Pos int `json:"pos"`

	// Text is the inserted text. Only used by inserts.
	Text string `json:"text,omitempty"`

	// Len is the number of UTF-16 code units removed. Only used by deletes.
	Len int `json:"len,omitempty"`

	// Version is the version the client believed was current when sending,
	// or the version produced by the operation when it comes from the server.
	Version uint64 `json:"version"`
}

// Insert returns an insert operation.
func Insert(pos int, text string) Operation {
	return Operation{Type: OpInsert, Pos: pos, Text: text}
}

// Delete returns a delete operation.
func Delete(pos, length int) Operation {
	return Operation{Type: OpDelete, Pos: pos, Len: length}
}

// Undo returns an undo request.
func Undo() Operation {
	return Operation{Type: OpUndo}
}

// Validate checks the operation's shape. It does not know about content, so
// bounds against the document are checked when the operation is applied.
func (op Operation) Validate() error {
	switch op.Type {
	case OpInsert:
		if op.Pos < 0 {
			return fmt.Errorf("%w: negative insert position %d", ErrInvalidOperation, op.Pos)
		}
		if op.Text == "" {
			return fmt.Errorf("%w: empty insert", ErrInvalidOperation)
		}
	case OpDelete:
		if op.Pos < 0 || op.Len < 0 {
			return fmt.Errorf("%w: delete pos=%d len=%d", ErrInvalidOperation, op.Pos, op.Len)
		}
		if op.Len == 0 {
			return fmt.Errorf("%w: empty delete", ErrInvalidOperation)
		}
	case OpUndo:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
	}
	return nil
}

// SameShape reports whether two operations describe the same edit, ignoring
// versions. This is how the client recognizes the echo of its own edits.
func (op Operation) SameShape(other Operation) bool {
	if op.Type != other.Type || op.Pos != other.Pos {
		return false
	}
	switch op.Type {
	case OpInsert:
		return op.Text == other.Text
	case OpDelete:
		return op.Len == other.Len
	}
	return true
}

func (op Operation) String() string {
	switch op.Type {
	case OpInsert:
		return fmt.Sprintf("insert(%d,%q)@%d", op.Pos, op.Text, op.Version)
	case OpDelete:
		return fmt.Sprintf("delete(%d,%d)@%d", op.Pos, op.Len, op.Version)
	}
	return string(op.Type)
}

// MarshalJSON writes only the fields that belong to the operation's type, so
// an undo goes over the wire as {"type":"undo"}.
func (op Operation) MarshalJSON() ([]byte, error) {
	switch op.Type {
	case OpInsert:
		return json.Marshal(struct {
			Type    OpType `json:"type"`
			Pos     int    `json:"pos"`
			Text    string `json:"text"`
			Version uint64 `json:"version"`
		}{op.Type, op.Pos, op.Text, op.Version})
	case OpDelete:
		return json.Marshal(struct {
			Type    OpType `json:"type"`
			Pos     int    `json:"pos"`
			Len     int    `json:"len"`
			Version uint64 `json:"version"`
		}{op.Type, op.Pos, op.Len, op.Version})
	case OpUndo:
		return json.Marshal(struct {
			Type OpType `json:"type"`
		}{op.Type})
	}

	type plain Operation
	return json.Marshal(plain(op))
}
