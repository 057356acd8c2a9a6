package sugondat

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/wsrpc"
	"github.com/archon-research/sugondat-rpc/internal/pkg/ss58"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// RuntimeLayout holds the pallet and call indices of the calls the client
// decodes and builds. They must match the node's runtime metadata.
type RuntimeLayout struct {
	TimestampPallet byte
	TimestampSet    byte
	BlobsPallet     byte
	BlobsSubmitBlob byte
}

// DefaultRuntimeLayout returns the layout of the sugondat runtime.
func DefaultRuntimeLayout() RuntimeLayout {
	return RuntimeLayout{
		TimestampPallet: 2,
		TimestampSet:    0,
		BlobsPallet:     40,
		BlobsSubmitBlob: 0,
	}
}

// Config holds the configuration for the sugondat client.
type Config struct {
	// URL is the node's RPC endpoint.
	// Example: ws://127.0.0.1:9944
	URL string

	// Dialer opens transports to the node.
	// Defaults to a WebSocket JSON-RPC dialer if not set.
	Dialer outbound.Dialer

	// Layout overrides the runtime's pallet and call indices.
	// Defaults to DefaultRuntimeLayout() if not set.
	Layout *RuntimeLayout

	// SS58Prefix is the network prefix used to render account addresses.
	// Defaults to 42 (generic Substrate) if not set.
	SS58Prefix uint16

	// Telemetry records metrics and spans. Optional.
	Telemetry *Telemetry

	// Logger is the structured logger for the client.
	// If not set, a default logger will be used.
	Logger *slog.Logger
}

// Validate checks that the URL is well formed and that the SS58 prefix is
// representable. Without a custom Dialer the URL must be ws or wss.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid RPC URL %q: %w", c.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid RPC URL %q: must be absolute with a host", c.URL)
	}
	if c.Dialer == nil {
		ws := wsrpc.Config{URL: c.URL}
		if err := ws.Validate(); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", c.URL, err)
		}
	}
	if c.SS58Prefix > ss58.MaxPrefix {
		return fmt.Errorf("SS58Prefix %d exceeds %d", c.SS58Prefix, ss58.MaxPrefix)
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = wsrpc.NewDialer(wsrpc.Config{Logger: c.Logger})
	}
	if c.Layout == nil {
		layout := DefaultRuntimeLayout()
		c.Layout = &layout
	}
	if c.SS58Prefix == 0 {
		c.SS58Prefix = ss58.SubstratePrefix
	}
}
