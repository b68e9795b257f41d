package mqttmcp

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
)

// connection is an mcp.Connection over one direction pair of MQTT topics.
// Inbound payloads are decoded by the subscription handler and queued;
// Read drains the queue. The queue is unbounded so broker callbacks never
// block.
type connection struct {
	broker     broker.Conn
	sessionID  string
	writeTopic string

	// onClose runs once, after the connection is marked closed.
	onClose func() error

	mu     sync.Mutex
	queue  []jsonrpc.Message
	notify chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Ensure connection implements mcp.Connection at compile time.
var _ mcp.Connection = (*connection)(nil)

func newConnection(b broker.Conn, sessionID, writeTopic string) *connection {
	return &connection{
		broker:     b,
		sessionID:  sessionID,
		writeTopic: writeTopic,
		notify:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
}

// deliver decodes and queues an inbound payload. Malformed payloads are
// dropped.
func (c *connection) deliver(payload []byte) {
	msg, err := jsonrpc.DecodeMessage(payload)
	if err != nil {
		slog.Warn("dropping malformed MCP message", "topic", c.writeTopic, "error", err)
		return
	}
	c.push(msg)
}

func (c *connection) push(msg jsonrpc.Message) {
	select {
	case <-c.closed:
		return
	default:
	}
	c.mu.Lock()
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *connection) pop() (jsonrpc.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return msg, true
}

func (c *connection) Read(ctx context.Context) (jsonrpc.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-c.closed:
			return nil, io.EOF
		default:
		}
		if msg, ok := c.pop(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, io.EOF
		case <-c.notify:
		}
	}
}

func (c *connection) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-c.closed:
		return mcp.ErrConnectionClosed
	default:
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if debug.TraceIsEnabled("mcp") {
		debug.Trace("mcp", "write", "topic", c.writeTopic, "payload", string(data))
	}
	return c.broker.Publish(ctx, c.writeTopic, data, false)
}

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.closeErr = c.onClose()
		}
	})
	return c.closeErr
}

func (c *connection) SessionID() string {
	return c.sessionID
}

// done is closed when the connection is closed.
func (c *connection) done() <-chan struct{} {
	return c.closed
}
