package sugondat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

const testTimeoutUnit = time.Second

var errTransportDown = errors.New("fake transport: connection lost")

// fakeDialer hands out in-memory transports backed by one fakeChain.
type fakeDialer struct {
	chain *fakeChain

	// failDials makes the next n dials fail.
	failDials atomic.Int32
	// gate, when set, blocks every dial until it is closed or ctx is done.
	gate chan struct{}
	// callHook, when set, runs before every Call; a non-nil error fails the
	// call and breaks the transport, like a dropped socket.
	callHook func(method string) error

	dials atomic.Int32

	mu         sync.Mutex
	transports []*fakeTransport
}

func newFakeDialer(chain *fakeChain) *fakeDialer {
	return &fakeDialer{chain: chain}
}

func (d *fakeDialer) dial(ctx context.Context, url string) (outbound.RPCTransport, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.failDials.Load() > 0 {
		d.failDials.Add(-1)
		return nil, fmt.Errorf("dial %s: connection refused", url)
	}

	tr := &fakeTransport{dialer: d, subs: make(map[*fakeSub]struct{})}
	d.mu.Lock()
	d.transports = append(d.transports, tr)
	d.mu.Unlock()
	return tr, nil
}

// last returns the most recently dialed transport.
func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// fakeTransport implements outbound.RPCTransport against a fakeChain.
type fakeTransport struct {
	dialer *fakeDialer

	mu     sync.Mutex
	closed bool
	subs   map[*fakeSub]struct{}
}

func (t *fakeTransport) Call(ctx context.Context, result any, method string, params ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.isClosed() {
		return errTransportDown
	}
	if hook := t.dialer.callHook; hook != nil {
		if err := hook(method); err != nil {
			t.drop()
			return err
		}
	}

	raw, err := encodeParams(params)
	if err != nil {
		return err
	}
	res, err := t.dialer.chain.handle(method, raw)
	if err != nil {
		return err
	}
	if res == nil || result == nil {
		return nil
	}
	encoded, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, result)
}

func (t *fakeTransport) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (outbound.RPCSubscription, error) {
	if t.isClosed() {
		return nil, errTransportDown
	}

	sub := &fakeSub{
		transport:     t,
		notifications: make(chan json.RawMessage, 64),
		done:          make(chan struct{}),
	}

	switch method {
	case methodSubscribeFinalizedHeads:
		sub.cleanup = t.dialer.chain.subscribeFinalized(func(h rpcHeader) {
			sub.push(h)
		})
	case methodSubmitAndWatch:
		raw, err := encodeParams(params)
		if err != nil {
			return nil, err
		}
		statuses, err := t.dialer.chain.submit(raw)
		if err != nil {
			return nil, err
		}
		for _, s := range statuses {
			sub.push(s)
		}
	default:
		return nil, fmt.Errorf("method %s not found", method)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		sub.end()
		return nil, errTransportDown
	}
	t.subs[sub] = struct{}{}
	return sub, nil
}

func (t *fakeTransport) Close() error {
	t.drop()
	return nil
}

// drop simulates the connection going away.
func (t *fakeTransport) drop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for sub := range subs {
		sub.end()
	}
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func encodeParams(params []any) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return raw, nil
}

type fakeSub struct {
	transport     *fakeTransport
	notifications chan json.RawMessage
	done          chan struct{}
	once          sync.Once
	cleanup       func()
}

func (s *fakeSub) push(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	select {
	case s.notifications <- b:
	case <-s.done:
	}
}

func (s *fakeSub) Next(ctx context.Context) (json.RawMessage, error) {
	select {
	case n := <-s.notifications:
		return n, nil
	case <-s.done:
		select {
		case n := <-s.notifications:
			return n, nil
		default:
		}
		return nil, outbound.ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSub) Close() error {
	s.end()
	s.transport.mu.Lock()
	delete(s.transport.subs, s)
	s.transport.mu.Unlock()
	return nil
}

func (s *fakeSub) end() {
	s.once.Do(func() {
		if s.cleanup != nil {
			s.cleanup()
		}
		close(s.done)
	})
}
