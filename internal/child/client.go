// ABOUTME: JSON-RPC 2.0 client specialized for MCP over a child's stdio transport.
// ABOUTME: Correlates responses by id and runs the initialize/discovery handshake.

package child

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/mcp-router/internal/wire"
)

// ErrClientClosed indicates a call was attempted after Close.
var ErrClientClosed = errors.New("client closed")

// ErrTransportClosed indicates the child's transport closed while a call was
// in flight.
var ErrTransportClosed = errors.New("child transport closed")

// ErrTimeout indicates a call exceeded the configured per-child timeout.
var ErrTimeout = errors.New("request timed out")

// protocolVersion is the MCP protocol revision spoken to children.
const protocolVersion = "2025-06-18"

// clientName identifies the router in the initialize handshake.
const clientName = "mcp-router"

// Client is a minimal MCP client over one line-framed transport. Each call
// registers a pending entry keyed by a monotonically increasing id and waits
// for the correlated response; responses may arrive in any order.
type Client struct {
	alias     string
	transport *wire.Transport
	logger    *slog.Logger
	timeout   time.Duration // zero means no deadline

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *wire.Message
	closed  bool
}

// NewClient creates a client for the child known by alias. A zero timeout
// disables per-call deadlines.
func NewClient(alias string, transport *wire.Transport, logger *slog.Logger, timeout time.Duration) *Client {
	return &Client{
		alias:     alias,
		transport: transport,
		logger:    logger,
		timeout:   timeout,
		pending:   make(map[int64]chan *wire.Message),
	}
}

// Connect wires the client to its transport and starts the read loop.
func (c *Client) Connect() {
	c.transport.OnMessage(c.handleMessage)
	c.transport.OnError(func(err error) {
		c.logger.Warn("discarding malformed line from child",
			"alias", c.alias,
			"error", err,
		)
	})
	c.transport.OnClose(c.failAllPending)
	c.transport.Start()
}

// Close shuts down the transport and fails any in-flight calls.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.transport.Close()
}

// call issues a request and blocks until the correlated response arrives,
// the context is cancelled, the deadline elapses, or the transport closes.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		rawParams = data
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *wire.Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer c.removePending(id)

	msg := &wire.Message{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  rawParams,
	}
	if err := c.transport.Send(msg); err != nil {
		if errors.Is(err, wire.ErrTransportClosed) {
			return nil, ErrTransportClosed
		}
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s to %s", ErrTimeout, method, c.alias)
		}
		return nil, ctx.Err()
	}
}

// notify sends a notification (no id, no response expected).
func (c *Client) notify(method string, params any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		rawParams = data
	}
	return c.transport.Send(&wire.Message{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
	})
}

// handleMessage routes an inbound message: responses complete their pending
// entry, notifications are accepted and logged, anything else is dropped
// with a warning.
func (c *Client) handleMessage(msg *wire.Message) {
	if msg.IsNotification() {
		c.logger.Debug("notification from child",
			"alias", c.alias,
			"method", msg.Method,
		)
		return
	}

	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		c.logger.Warn("response with non-numeric id from child",
			"alias", c.alias,
			"id", string(msg.ID),
		)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("response for unknown request id",
			"alias", c.alias,
			"id", id,
		)
		return
	}
	ch <- msg
}

// failAllPending closes every pending channel so waiting callers observe
// ErrTransportClosed. Invoked from the transport close callback.
func (c *Client) failAllPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
