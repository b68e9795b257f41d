package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rhuss/sdvagent/pkg/discovery"
	"github.com/rhuss/sdvagent/pkg/tools"
)

// MCPExecutor implements tools.ToolExecutor over a set of MCP clients and
// routes each call to the server providing the tool.
type MCPExecutor struct {
	kind tools.ToolKind

	mu sync.RWMutex

	// clients maps server name to MCPClient.
	clients map[string]*MCPClient

	// toolToServer maps tool name to the server that provides it.
	toolToServer map[string]string

	discovered bool
}

// Ensure MCPExecutor implements the tool interfaces at compile time.
var (
	_ tools.ToolExecutor     = (*MCPExecutor)(nil)
	_ tools.DefinitionSource = (*MCPExecutor)(nil)
)

// NewMCPExecutor creates an executor for static HTTP MCP clients.
func NewMCPExecutor(clients map[string]*MCPClient) *MCPExecutor {
	return &MCPExecutor{
		kind:         tools.ToolKindMCP,
		clients:      clients,
		toolToServer: make(map[string]string),
	}
}

// NewDiscoveredExecutor creates an executor for sessions acquired through
// MQTT discovery.
func NewDiscoveredExecutor(sessions map[string]*discovery.Session) *MCPExecutor {
	clients := make(map[string]*MCPClient, len(sessions))
	for name, s := range sessions {
		clients[name] = NewSessionClient(s)
	}
	e := NewMCPExecutor(clients)
	e.kind = tools.ToolKindDiscovered
	return e
}

// Kind returns the kind of the wrapped servers.
func (e *MCPExecutor) Kind() tools.ToolKind {
	return e.kind
}

// CanExecute reports whether any server provides the named tool. The first
// call triggers tool discovery.
func (e *MCPExecutor) CanExecute(toolName string) bool {
	e.ensureDiscovered(context.Background())

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[toolName]
	return ok
}

// Execute routes the call to the server providing the tool.
func (e *MCPExecutor) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	if !ok {
		e.mu.RUnlock()
		return errorResult(call.ID, fmt.Sprintf("no MCP server provides tool %q", call.Name)), nil
	}
	client := e.clients[serverName]
	e.mu.RUnlock()

	return client.CallTool(ctx, call)
}

// Definitions returns the tools of every server, without duplicates, in
// server name order.
func (e *MCPExecutor) Definitions(ctx context.Context) ([]tools.Definition, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var all []tools.Definition
	for _, name := range e.serverNames() {
		client := e.clients[name]
		client.mu.Lock()
		for _, d := range client.cachedTools {
			if e.toolToServer[d.Name] == name {
				all = append(all, d)
			}
		}
		client.mu.Unlock()
	}
	return all, nil
}

// ServerFor returns the server providing a tool.
func (e *MCPExecutor) ServerFor(toolName string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.toolToServer[toolName]
	return s, ok
}

// Close closes all owned client connections.
func (e *MCPExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (e *MCPExecutor) serverNames() []string {
	names := make([]string, 0, len(e.clients))
	for n := range e.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ensureDiscovered lists tools on every server once. Servers are visited in
// name order so the first provider of a duplicate tool name is stable.
func (e *MCPExecutor) ensureDiscovered(ctx context.Context) {
	e.mu.RLock()
	if e.discovered {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if e.discovered {
		return
	}

	for _, name := range e.serverNames() {
		defs, err := e.clients[name].DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server", "server", name, "error", err)
			continue
		}

		for _, d := range defs {
			if owner, exists := e.toolToServer[d.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", d.Name,
					"server", name,
					"provider", owner,
				)
				continue
			}
			e.toolToServer[d.Name] = name
		}

		slog.Info("discovered MCP tools", "server", name, "count", len(defs))
	}

	e.discovered = true
}
