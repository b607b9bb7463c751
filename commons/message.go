package commons

import (
	"encoding/json"
	"fmt"
)

// MessageType represents the type of a server message.
type MessageType string

// The server sends 4 message types:
// - initial_state (handshake complete, optionally with the document snapshot)
// - operation (an accepted operation, including echoes of our own)
// - out_of_sync (the client must adopt the attached snapshot)
// - error (authorization failures and version conflicts)
const (
	InitialStateMessage MessageType = "initial_state"
	OperationMessage    MessageType = "operation"
	OutOfSyncMessage    MessageType = "out_of_sync"
	ErrorMessage        MessageType = "error"
)

// ServerMessage represents any message sent by the server over the wire.
type ServerMessage struct {
	Type MessageType `json:"type"`

	// Content is set by initial_state (optional) and out_of_sync.
	Content *string `json:"content,omitempty"`

	// Version is set by initial_state and out_of_sync.
	Version uint64 `json:"version,omitempty"`

	// Op is set by operation messages.
	Op *Operation `json:"op,omitempty"`

	Code           ErrorCode `json:"code,omitempty"`
	Message        string    `json:"message,omitempty"`
	CurrentVersion *uint64   `json:"current_version,omitempty"`
}

// Snapshot is a content and version pair.
type Snapshot struct {
	Content string
	Version uint64
}

// ParseServerMessage decodes and validates a server frame.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode server message: %w", err)
	}

	switch msg.Type {
	case InitialStateMessage:
	case OperationMessage:
		if msg.Op == nil {
			return msg, fmt.Errorf("operation message without op")
		}
		if err := msg.Op.Validate(); err != nil {
			return msg, err
		}
	case OutOfSyncMessage:
		if msg.Content == nil {
			return msg, fmt.Errorf("out_of_sync message without content")
		}
	case ErrorMessage:
		if msg.Code == "" {
			return msg, fmt.Errorf("error message without code")
		}
	default:
		return msg, fmt.Errorf("unknown message type %q", msg.Type)
	}

	return msg, nil
}

// Err converts an error message to a structured error.
func (msg ServerMessage) Err() *Error {
	return &Error{Code: msg.Code, Message: msg.Message, CurrentVersion: msg.CurrentVersion}
}

// NewInitialState returns an initial_state message. A nil content means the
// server only announces its version.
func NewInitialState(content *string, version uint64) ServerMessage {
	return ServerMessage{Type: InitialStateMessage, Content: content, Version: version}
}

// NewOperationMessage wraps an accepted operation.
func NewOperationMessage(op Operation) ServerMessage {
	return ServerMessage{Type: OperationMessage, Op: &op}
}

// NewOutOfSync returns an out_of_sync message carrying a snapshot.
func NewOutOfSync(content string, version uint64) ServerMessage {
	return ServerMessage{Type: OutOfSyncMessage, Content: &content, Version: version}
}

// NewErrorMessage returns an error message.
func NewErrorMessage(e *Error) ServerMessage {
	return ServerMessage{Type: ErrorMessage, Code: e.Code, Message: e.Message, CurrentVersion: e.CurrentVersion}
}
