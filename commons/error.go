package commons

import "fmt"

// ErrorCode classifies errors reported by the server or raised by the client.
type ErrorCode string

const (
	// Sent by the server.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeConflict     ErrorCode = "CONFLICT"

	// Raised by the client.
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeResyncFailed     ErrorCode = "RESYNC_FAILED"
)

// Error is the structured error handed to the UI.
type Error struct {
	Code    ErrorCode
	Message string

	// CurrentVersion is the server's version, sent with CONFLICT.
	CurrentVersion *uint64

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.CurrentVersion != nil {
		return fmt.Sprintf("%s: %s (current version %d)", e.Code, e.Message, *e.CurrentVersion)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so errors.Is(err, &Error{Code: CodeConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Fatal reports whether the error permanently ends the session.
func (e *Error) Fatal() bool {
	switch e.Code {
	case CodeUnauthorized, CodeForbidden, CodeConnectionFailed:
		return true
	}
	return false
}
