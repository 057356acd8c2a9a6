package sugondat

import (
	"context"
	"log/slog"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// connection is one live transport and the finality watcher bound to it.
type connection struct {
	transport outbound.RPCTransport
	finality  *finalityWatcher
	cancel    context.CancelFunc
}

func newConnection(transport outbound.RPCTransport, logger *slog.Logger, telemetry *Telemetry) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		transport: transport,
		finality:  startFinalityWatcher(ctx, transport, logger, telemetry),
		cancel:    cancel,
	}
}

// close stops the watcher, closes the transport and waits for the watcher to exit.
func (c *connection) close() error {
	c.cancel()
	err := c.transport.Close()
	<-c.finality.done
	return err
}
