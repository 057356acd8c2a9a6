package wsrpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Default configuration values.
const (
	defaultDialTimeout        = 10 * time.Second
	defaultWriteTimeout       = 10 * time.Second
	defaultPingInterval       = 30 * time.Second
	defaultPongTimeout        = 10 * time.Second
	defaultReadTimeout        = 60 * time.Second
	defaultNotificationBuffer = 128
	defaultUnsubscribeTimeout = 5 * time.Second
)

// Config holds the configuration for a WebSocket JSON-RPC transport.
type Config struct {
	// URL is the node's WebSocket endpoint.
	// Example: ws://127.0.0.1:9944
	URL string

	// DialTimeout bounds the WebSocket handshake.
	// Defaults to 10 seconds if not set.
	DialTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Defaults to 10 seconds if not set.
	WriteTimeout time.Duration

	// PingInterval is how often to send ping messages to keep the connection alive.
	// Defaults to 30 seconds if not set.
	PingInterval time.Duration

	// PongTimeout is how long a ping write may take before the connection is considered dead.
	// Defaults to 10 seconds if not set.
	PongTimeout time.Duration

	// ReadTimeout is the maximum time to wait for any frame (including pongs)
	// before the connection is considered dead.
	// Defaults to 60 seconds if not set.
	ReadTimeout time.Duration

	// NotificationBuffer is the per-subscription notification queue size.
	// A subscription whose queue overflows is terminated.
	// Defaults to 128 if not set.
	NotificationBuffer int

	// Logger is the structured logger for the transport.
	// If not set, a default logger will be used.
	Logger *slog.Logger
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported URL scheme %q: want ws or wss", u.Scheme)
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.NotificationBuffer == 0 {
		c.NotificationBuffer = defaultNotificationBuffer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
