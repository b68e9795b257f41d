package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/mqttmcp"
	"github.com/rhuss/sdvagent/pkg/observability"
)

// Outcome is the result of one initialize handshake. Session is set only
// on success and is owned by the caller.
type Outcome struct {
	ServerName string
	Success    bool
	Payload    any
	Session    *mcp.ClientSession
}

// Initializer performs the MCP initialize handshake with discovered
// servers and tracks the state of each.
type Initializer struct {
	// ClientID is the client id segment of the RPC topics.
	ClientID string

	// Implementation is announced to servers in the handshake.
	Implementation *mcp.Implementation

	// Timeout bounds each handshake. Zero means the caller's context only.
	Timeout time.Duration

	mu     sync.Mutex
	states map[string]State
}

// State returns the lifecycle state of a server.
func (i *Initializer) State(name string) State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.states[name]
}

// Discovered marks a server as seen but not yet initializing.
func (i *Initializer) Discovered(name string) {
	i.setState(name, StateDiscovered)
}

func (i *Initializer) setState(name string, s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.states == nil {
		i.states = make(map[string]State)
	}
	switch i.states[name] {
	case StateInitialized, StateFailed:
		return
	}
	i.states[name] = s
}

// Initialize connects an MCP client session to the named server over conn.
// Failures are reported in the outcome, never as an error, so one broken
// server cannot abort discovery of the others.
func (i *Initializer) Initialize(ctx context.Context, conn broker.Conn, name string) Outcome {
	i.setState(name, StateInitializing)
	start := time.Now()

	if i.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	impl := i.Implementation
	if impl == nil {
		impl = &mcp.Implementation{Name: "sdvagent", Version: "dev"}
	}

	t := &trackedTransport{inner: &mqttmcp.ClientTransport{
		Conn:       conn,
		ServerName: name,
		ClientID:   i.ClientID,
	}}
	cs, err := mcp.NewClient(impl, nil).Connect(ctx, t, nil)
	observability.DiscoveryInitializationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// The SDK leaves the connection open on some handshake failures.
		t.close()
		i.setState(name, StateFailed)
		observability.DiscoveryInitializationsTotal.WithLabelValues("failure").Inc()
		slog.Warn("tool server initialization failed", "server", name, "error", err)
		return Outcome{ServerName: name, Payload: fmt.Errorf("initializing %s: %w", name, err)}
	}

	res := cs.InitializeResult()
	i.setState(name, StateInitialized)
	observability.DiscoveryInitializationsTotal.WithLabelValues("success").Inc()
	if res != nil && res.ServerInfo != nil {
		debug.Log("discovery", "tool server initialized",
			"server", name,
			"impl", res.ServerInfo.Name,
			"impl_version", res.ServerInfo.Version,
			"protocol", res.ProtocolVersion,
			"duration", time.Since(start))
	}
	return Outcome{ServerName: name, Success: true, Payload: res, Session: cs}
}

// trackedTransport remembers the connection it handed out.
type trackedTransport struct {
	inner mcp.Transport

	mu   sync.Mutex
	conn mcp.Connection
}

func (t *trackedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	c, err := t.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
	return c, nil
}

func (t *trackedTransport) close() {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}
