// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrSubscriptionClosed is returned by RPCSubscription.Next once the
// subscription has ended, either because it was closed locally or because the
// underlying transport went away.
var ErrSubscriptionClosed = errors.New("subscription closed")

// RPCTransport is a bidirectional JSON-RPC channel to a node.
// Implementations may fail at any point; callers treat every error from an
// in-flight request as a reason to discard the transport and dial again.
type RPCTransport interface {
	// Call performs a request/response round trip and decodes the result into
	// result (which may be nil to discard it). A JSON null result leaves
	// result untouched.
	Call(ctx context.Context, result any, method string, params ...any) error

	// Subscribe opens a server-push subscription. unsubscribeMethod is sent
	// when the subscription is closed.
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (RPCSubscription, error)

	// Close tears the transport down and fails all in-flight requests.
	Close() error
}

// RPCSubscription is a stream of notifications for one subscription.
type RPCSubscription interface {
	// Next blocks until the next notification payload is available.
	// Returns ErrSubscriptionClosed (possibly wrapped) when the stream ends.
	Next(ctx context.Context) (json.RawMessage, error)

	// Close unsubscribes and releases the subscription.
	Close() error
}

// Dialer opens a transport to the node at url.
type Dialer func(ctx context.Context, url string) (RPCTransport, error)
