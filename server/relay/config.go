// Package relay is a document server for development and tests. It keeps
// documents in memory, orders every operation into one version sequence, and
// broadcasts accepted operations to the document's clients. Operations issued
// against state the client did not have are rejected with CONFLICT; the
// relay never merges.
package relay

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the relay settings.
type Config struct {
	// Secret is the HS256 key for bearer tokens. When empty, the token itself
	// is taken as the user id.
	Secret []byte

	// AnnounceOnly makes initial_state carry the version without content, so
	// clients fetch the document over REST.
	AnnounceOnly bool

	// LogLimit is the number of operations kept per document.
	LogLimit int

	SendBuffer     int
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration

	Logger logrus.FieldLogger
}

// DefaultConfig returns the default relay settings.
func DefaultConfig() Config {
	return Config{
		LogLimit:       1024,
		SendBuffer:     256,
		MaxMessageSize: 8 << 20,
		PingInterval:   20 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = def.LogLimit
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg
}
