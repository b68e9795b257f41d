package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/discovery"
	"github.com/rhuss/sdvagent/pkg/observability"
	"github.com/rhuss/sdvagent/pkg/tools"
)

// toolSession is the part of an MCP session the client needs.
// *discovery.Session implements it directly.
type toolSession interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

var _ toolSession = (*discovery.Session)(nil)

// MCPClient exposes one MCP server's tools.
type MCPClient struct {
	name string
	kind tools.ToolKind
	cfg  ServerConfig

	session toolSession
	// owned is false for discovered sessions, which the discovery client
	// closes.
	owned bool

	mu            sync.Mutex
	cachedTools   []tools.Definition
	toolsResolved bool
}

// NewSessionClient wraps a session acquired through MQTT discovery.
func NewSessionClient(s *discovery.Session) *MCPClient {
	return &MCPClient{name: s.Name(), kind: tools.ToolKindDiscovered, session: s}
}

// NewMCPClient creates a client for a static HTTP MCP server. Call
// Connect before use.
func NewMCPClient(cfg ServerConfig) *MCPClient {
	return &MCPClient{name: cfg.Name, kind: tools.ToolKindMCP, cfg: cfg, owned: true}
}

// Name returns the server name.
func (c *MCPClient) Name() string { return c.name }

// Connect performs the MCP handshake with the configured server.
func (c *MCPClient) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport connects over the given transport, or over one
// built from the server configuration when transport is nil.
func (c *MCPClient) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "sdvagent", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.name, err)
		}
		transport = t
	}

	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.name, err)
	}
	c.session = &sdkSession{cs: cs}
	return nil
}

func (c *MCPClient) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	case "streamable-http", "":
		return &mcp.StreamableClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an instrumented client that adds the static
// headers and, when configured, OAuth bearer tokens. The client has no
// timeout because SSE streams stay open.
func (c *MCPClient) buildHTTPClient() *http.Client {
	var sources []HeaderSource
	if len(c.cfg.Headers) > 0 {
		sources = append(sources, StaticHeaders(c.cfg.Headers))
	}
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		sources = append(sources, NewClientCredentials(c.cfg.Auth))
	}

	var rt http.RoundTripper = &observability.InstrumentedTransport{}
	if len(sources) > 0 {
		rt = &headerTransport{base: rt, sources: sources}
	}
	return &http.Client{Transport: rt}
}

// DiscoverTools lists the server's tools as definitions and caches them.
func (c *MCPClient) DiscoverTools(ctx context.Context) ([]tools.Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.toolsResolved {
		return c.cachedTools, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.name)
	}

	listed, err := c.session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tools from %q: %w", c.name, err)
	}

	defs := make([]tools.Definition, 0, len(listed))
	for _, t := range listed {
		d, err := convertTool(t)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", t.Name, c.name, err)
		}
		defs = append(defs, d)
	}

	c.cachedTools = defs
	c.toolsResolved = true
	return defs, nil
}

// CallTool executes a tool call. Argument and call failures become error
// results for the model rather than Go errors.
func (c *MCPClient) CallTool(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(call.ID, fmt.Sprintf("invalid arguments JSON: %v", err)), nil
		}
	}

	res, err := c.session.CallTool(ctx, call.Name, args)
	if err != nil {
		var remote *discovery.RemoteToolError
		switch {
		case errors.As(err, &remote):
			return errorResult(call.ID, remote.Message), nil
		case errors.Is(err, discovery.ErrToolNotFound):
			return errorResult(call.ID, fmt.Sprintf("tool %q is not provided by %s", call.Name, c.name)), nil
		default:
			return errorResult(call.ID, fmt.Sprintf("MCP tool call error: %v", err)), nil
		}
	}
	return convertResult(call.ID, res), nil
}

// Close closes the session if this client owns it.
func (c *MCPClient) Close() error {
	if c.session != nil && c.owned {
		return c.session.Close()
	}
	return nil
}

func errorResult(callID, msg string) *tools.ToolResult {
	return &tools.ToolResult{CallID: callID, Output: msg, IsError: true}
}

func convertTool(t *mcp.Tool) (tools.Definition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return tools.Definition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}
	return tools.Definition{Name: t.Name, Description: t.Description, Parameters: params}, nil
}

func convertResult(callID string, res *mcp.CallToolResult) *tools.ToolResult {
	return &tools.ToolResult{
		CallID:  callID,
		Output:  discovery.ResultText(res),
		IsError: res.IsError,
	}
}

// sdkSession adapts *mcp.ClientSession to toolSession.
type sdkSession struct {
	cs *mcp.ClientSession
}

func (s *sdkSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var out []*mcp.Tool
	for t, err := range s.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *sdkSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func (s *sdkSession) Close() error {
	return s.cs.Close()
}
