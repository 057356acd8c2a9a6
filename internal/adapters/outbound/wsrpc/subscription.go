package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// ErrSubscriptionOverflow ends a subscription whose consumer fell behind by
// more than Config.NotificationBuffer notifications.
var ErrSubscriptionOverflow = errors.New("wsrpc: subscription queue overflow")

// subscription implements outbound.RPCSubscription.
type subscription struct {
	client            *Client
	method            string
	unsubscribeMethod string

	// Set by the read loop when the subscribe response arrives.
	id    string
	rawID json.RawMessage

	notifications chan json.RawMessage
	done          chan struct{}
	err           error
	once          sync.Once
	closeOnce     sync.Once
}

var _ outbound.RPCSubscription = (*subscription)(nil)

// Next returns the next notification payload. Notifications queued before the
// subscription ended are still delivered.
func (s *subscription) Next(ctx context.Context) (json.RawMessage, error) {
	select {
	case n := <-s.notifications:
		return n, nil
	case <-s.done:
		select {
		case n := <-s.notifications:
			return n, nil
		default:
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes from the node and ends the subscription.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.client.dropSubscription(s)
		s.terminate(outbound.ErrSubscriptionClosed)
		err = s.client.unsubscribe(s)
	})
	return err
}

// deliver queues a notification without blocking the read loop.
func (s *subscription) deliver(payload json.RawMessage) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.notifications <- payload:
	default:
		s.client.logger.Warn("subscription queue full, dropping subscription", "method", s.method, "subscription", s.id)
		s.client.dropSubscription(s)
		s.terminate(fmt.Errorf("%w: %w", outbound.ErrSubscriptionClosed, ErrSubscriptionOverflow))
		go func() {
			if err := s.client.unsubscribe(s); err != nil {
				s.client.logger.Debug("unsubscribe after overflow failed", "error", err)
			}
		}()
	}
}

func (s *subscription) terminate(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
