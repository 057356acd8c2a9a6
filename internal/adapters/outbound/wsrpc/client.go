// Package wsrpc provides a JSON-RPC 2.0 transport over a single WebSocket
// connection, with support for server-push subscriptions.
//
// A Client is single-use: once the connection fails or is closed, every
// pending and future request fails and every subscription ends. Reconnecting
// is the caller's job.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.RPCTransport
var _ outbound.RPCTransport = (*Client)(nil)

// ErrClosed is the failure reported after Close has been called.
var ErrClosed = errors.New("wsrpc: transport closed")

// Client is a JSON-RPC client bound to one WebSocket connection.
type Client struct {
	config Config
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]*pendingCall
	subs     map[string]*subscription
	closed   bool
	closeErr error

	done chan struct{}
}

type pendingCall struct {
	resp chan *jsonRPCMessage
	// sub is set for subscribe requests; it is registered by the read loop
	// before the response is handed over so no early notification is lost.
	sub *subscription
}

// Dial connects to the node and starts the read and keep-alive loops.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.URL, err)
	}

	// Set initial read deadline so a silent peer cannot park the read loop forever
	if err := conn.SetReadDeadline(time.Now().Add(config.ReadTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
	})

	c := &Client{
		config:  config,
		conn:    conn,
		logger:  config.Logger.With("component", "wsrpc", "url", config.URL),
		pending: make(map[uint64]*pendingCall),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// NewDialer returns an outbound.Dialer that dials with config, overriding its URL.
func NewDialer(config Config) outbound.Dialer {
	return func(ctx context.Context, url string) (outbound.RPCTransport, error) {
		cfg := config
		cfg.URL = url
		return Dial(ctx, cfg)
	}
}

// Call performs a JSON-RPC request and decodes the result into result.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	msg, err := c.request(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if msg.Error != nil {
		return msg.Error
	}
	if result == nil || isNull(msg.Result) {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// Subscribe sends method and returns the resulting subscription.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (outbound.RPCSubscription, error) {
	sub := &subscription{
		client:            c,
		method:            method,
		unsubscribeMethod: unsubscribeMethod,
		notifications:     make(chan json.RawMessage, c.config.NotificationBuffer),
		done:              make(chan struct{}),
	}

	msg, err := c.request(ctx, method, params, sub)
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	return sub, nil
}

// Close tears down the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.config.WriteTimeout),
	)

	c.fail(ErrClosed)
	return nil
}

// Done is closed once the transport has failed or been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the transport stopped, or nil while it is running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) request(ctx context.Context, method string, params []any, sub *subscription) (*jsonRPCMessage, error) {
	if params == nil {
		params = []any{}
	}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	call := &pendingCall{resp: make(chan *jsonRPCMessage, 1), sub: sub}
	c.pending[id] = call
	c.mu.Unlock()

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.write(req); err != nil {
		c.removePending(id)
		err = fmt.Errorf("failed to send %s request: %w", method, err)
		c.fail(err)
		return nil, err
	}

	select {
	case msg := <-call.resp:
		return msg, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) removePending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop reads frames until the connection fails and dispatches them.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("read error: %w", err))
			return
		}

		// Extend read deadline on every frame
		if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			c.fail(fmt.Errorf("failed to set read deadline: %w", err))
			return
		}

		var msg jsonRPCMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("discarding malformed message", "error", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *jsonRPCMessage) {
	if msg.isResponse() {
		var id uint64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			c.logger.Warn("discarding response with unexpected id", "id", string(msg.ID))
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		call, ok := c.pending[id]
		delete(c.pending, id)
		if ok && call.sub != nil && msg.Error == nil {
			call.sub.id = subscriptionKey(msg.Result)
			call.sub.rawID = msg.Result
			c.subs[call.sub.id] = call.sub
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("response for unknown or abandoned request", "id", id)
			return
		}
		call.resp <- msg
		return
	}

	if msg.Method == "" || len(msg.Params) == 0 {
		c.logger.Debug("discarding message without id or method")
		return
	}

	var params notificationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.logger.Warn("failed to parse subscription params", "method", msg.Method, "error", err)
		return
	}

	key := subscriptionKey(params.Subscription)
	c.mu.Lock()
	sub := c.subs[key]
	c.mu.Unlock()

	if sub == nil {
		c.logger.Debug("notification for unknown subscription", "method", msg.Method, "subscription", key)
		return
	}
	sub.deliver(params.Result)
}

// pingLoop sends periodic pings; the pong handler extends the read deadline.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.PongTimeout)); err != nil {
				c.fail(fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

// fail shuts the transport down with err as the reason. Only the first call
// has any effect.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	subs := c.subs
	c.pending = nil
	c.subs = nil
	c.mu.Unlock()

	if !errors.Is(err, ErrClosed) {
		c.logger.Warn("transport failed", "error", err)
	}

	close(c.done)
	c.conn.Close()

	for _, sub := range subs {
		sub.terminate(fmt.Errorf("%w: %v", outbound.ErrSubscriptionClosed, err))
	}
}

// dropSubscription removes sub from the routing table.
func (c *Client) dropSubscription(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs != nil && c.subs[sub.id] == sub {
		delete(c.subs, sub.id)
	}
}

// unsubscribe sends the unsubscribe request for sub, if the transport is still up.
func (c *Client) unsubscribe(sub *subscription) error {
	if sub.unsubscribeMethod == "" || len(sub.rawID) == 0 {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultUnsubscribeTimeout)
	defer cancel()

	var ok bool
	if err := c.Call(ctx, &ok, sub.unsubscribeMethod, sub.rawID); err != nil {
		return fmt.Errorf("failed to unsubscribe %s: %w", sub.method, err)
	}
	return nil
}
