package mqttmcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
)

// ClientTransport connects an MCP client to one named server over a shared
// broker connection. Several transports (one per server) may share Conn.
type ClientTransport struct {
	Conn       broker.Conn
	ServerName string
	ClientID   string
}

// Ensure ClientTransport implements mcp.Transport at compile time.
var _ mcp.Transport = (*ClientTransport)(nil)

// Connect subscribes to the server's response topic for this client. The
// context bounds the subscription only, not the connection lifetime.
func (t *ClientTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if t.Conn == nil || t.ServerName == "" || t.ClientID == "" {
		return nil, errors.New("mqttmcp: client transport needs Conn, ServerName and ClientID")
	}

	respTopic := ResponseTopic(t.ServerName, t.ClientID)
	reqTopic := RequestTopic(t.ServerName, t.ClientID)

	c := newConnection(t.Conn, t.ClientID, reqTopic)
	c.onClose = func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Tell the server to drop its session; best effort.
		if data, err := encodeDisconnected(); err == nil {
			if err := t.Conn.Publish(ctx, reqTopic, data, false); err != nil && !errors.Is(err, broker.ErrClosed) {
				debug.Log("mcp", "disconnect notification failed", "server", t.ServerName, "error", err)
			}
		}
		if err := t.Conn.Unsubscribe(ctx, respTopic); err != nil && !errors.Is(err, broker.ErrClosed) {
			return fmt.Errorf("unsubscribing %q: %w", respTopic, err)
		}
		return nil
	}

	if err := t.Conn.Subscribe(ctx, respTopic, func(m broker.Message) {
		c.deliver(m.Payload)
	}); err != nil {
		return nil, fmt.Errorf("subscribing to responses of %q: %w", t.ServerName, err)
	}

	debug.Log("mcp", "client transport connected", "server", t.ServerName, "client_id", t.ClientID)
	return c, nil
}
