package sugondat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/archon-research/sugondat-rpc/internal/pkg/retry"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// connector owns the client's single connection slot.
//
// The mutex only guards the slot and the in-flight dial marker; dialing and
// closing happen outside it.
type connector struct {
	url       string
	dial      outbound.Dialer
	logger    *slog.Logger
	telemetry *Telemetry

	mu      sync.Mutex
	current *connection
	closed  bool
	// dialing is non-nil while a dial is in flight and closed when it ends.
	dialing chan struct{}
}

func newConnector(url string, dial outbound.Dialer, logger *slog.Logger, telemetry *Telemetry) *connector {
	return &connector{
		url:       url,
		dial:      dial,
		logger:    logger.With("component", "connector"),
		telemetry: telemetry,
	}
}

// ensureConnected returns the live connection, dialing one if there is none.
// Dial failures are retried until ctx is done. Concurrent callers share one
// dial; if the dialing caller gives up, a waiting caller takes over.
func (c *connector) ensureConnected(ctx context.Context) (*connection, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClientClosed
		}
		if conn := c.current; conn != nil {
			c.mu.Unlock()
			return conn, nil
		}
		if wait := c.dialing; wait != nil {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		c.dialing = done
		c.mu.Unlock()

		conn, err := c.connect(ctx)

		c.mu.Lock()
		c.dialing = nil
		closed := c.closed
		if err == nil && !closed {
			c.current = conn
		}
		c.mu.Unlock()
		close(done)

		if err != nil {
			return nil, err
		}
		if closed {
			_ = conn.close()
			return nil, ErrClientClosed
		}
		return conn, nil
	}
}

func (c *connector) connect(ctx context.Context) (*connection, error) {
	onRetry := func(attempt int, err error) {
		c.logger.Warn("failed to connect to sugondat node, retrying", "url", c.url, "attempt", attempt, "error", err)
	}
	conn, err := retry.UntilSuccess(ctx, onRetry, func(ctx context.Context) (*connection, error) {
		transport, err := c.dial(ctx, c.url)
		if err != nil {
			return nil, err
		}
		return newConnection(transport, c.logger, c.telemetry), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("connected to sugondat node", "url", c.url)
	return conn, nil
}

// currentConnection returns the current connection without dialing, or nil.
func (c *connector) currentConnection() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// reset drops observed if it is still the current connection and closes it.
// A reset for a connection that has already been replaced does nothing.
func (c *connector) reset(observed *connection) {
	if observed == nil {
		return
	}

	c.mu.Lock()
	if c.current != observed {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	c.logger.Warn("resetting connection to sugondat node", "url", c.url)
	c.telemetry.RecordReconnection(context.Background())
	if err := observed.close(); err != nil {
		c.logger.Debug("error closing transport", "error", err)
	}
}

// close tears down the current connection, if any. Later calls to
// ensureConnected fail with ErrClientClosed.
func (c *connector) close() error {
	c.mu.Lock()
	conn := c.current
	c.current = nil
	c.closed = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.close()
}
