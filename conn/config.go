// Package conn manages the WebSocket session between the client and the
// document server: handshake, retries with backoff, keepalive, and a typed
// stream of inbound messages delivered through a Handler.
package conn

import (
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of the session.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

// InitialState is the payload of an initial_state message. Content is nil
// when the server only announces its version.
type InitialState struct {
	Content *string
	Version uint64
}

// Handler receives the session's events. Calls are made one at a time from
// the session goroutine, in the order the server sent the messages.
type Handler interface {
	OnStatus(status Status)
	OnReady(state InitialState)
	OnOperation(op commons.Operation)
	OnOutOfSync(snapshot commons.Snapshot)
	OnError(err *commons.Error)
}

// Config holds the session settings.
type Config struct {
	// Endpoint is the server's base WebSocket URL, for example ws://localhost:8080.
	Endpoint string

	// HandshakeTimeout bounds the dial plus the wait for initial_state.
	HandshakeTimeout time.Duration

	// MaxRetries is the number of reconnect attempts after an unclean close.
	MaxRetries int

	// BackoffBase and BackoffMax shape the exponential retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SendBuffer is the number of outbound frames that may be queued.
	SendBuffer int

	// MaxMessageSize limits inbound frames, in bytes.
	MaxMessageSize int64

	Dialer *websocket.Dialer
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default settings for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:         endpoint,
		HandshakeTimeout: 5 * time.Second,
		MaxRetries:       3,
		BackoffBase:      1 * time.Second,
		BackoffMax:       10 * time.Second,
		PingInterval:     20 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		SendBuffer:       256,
		MaxMessageSize:   8 << 20,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig(cfg.Endpoint)
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg
}
