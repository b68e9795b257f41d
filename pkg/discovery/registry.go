package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is an initialized MCP session with one discovered server. Calls
// on a session are serialized.
type Session struct {
	name string
	cs   *mcp.ClientSession
	init *mcp.InitializeResult

	mu    sync.Mutex
	tools map[string]*mcp.Tool
}

// Name returns the server name.
func (s *Session) Name() string { return s.name }

// InitializeResult returns the server's handshake result.
func (s *Session) InitializeResult() *mcp.InitializeResult { return s.init }

// ListTools returns every tool the server offers, following pagination.
func (s *Session) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTools(ctx)
}

func (s *Session) listTools(ctx context.Context) ([]*mcp.Tool, error) {
	var (
		all    []*mcp.Tool
		cursor string
	)
	for {
		params := &mcp.ListToolsParams{}
		if cursor != "" {
			params.Cursor = cursor
		}
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, &TransportError{Server: s.name, Op: "tools/list", Err: err}
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	s.tools = make(map[string]*mcp.Tool, len(all))
	for _, t := range all {
		s.tools[t.Name] = t
	}
	return all, nil
}

// CallTool invokes a tool. It fails with ErrToolNotFound for a tool the
// server does not list, *RemoteToolError when the server rejects the call
// or reports a tool error, and *TransportError when the exchange fails.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tools == nil {
		if _, err := s.listTools(ctx); err != nil {
			return nil, err
		}
	}
	if _, ok := s.tools[name]; !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrToolNotFound, name, s.name)
	}

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		var jerr *jsonrpc.Error
		if errors.As(err, &jerr) {
			return nil, &RemoteToolError{Server: s.name, Tool: name, Code: jerr.Code, Message: jerr.Message}
		}
		return nil, &TransportError{Server: s.name, Op: "tools/call " + name, Err: err}
	}
	if res.IsError {
		return nil, &RemoteToolError{Server: s.name, Tool: name, Message: ResultText(res)}
	}
	return res, nil
}

// Close ends the session.
func (s *Session) Close() error {
	return s.cs.Close()
}

// ResultText joins the text content of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Registry maps server names to sessions. It is read-only after
// construction.
type Registry struct {
	sessions map[string]*Session
}

// BuildSessions creates a registry from the successful records that have a
// live client session. Failed records never produce a session.
func BuildSessions(records []Record, live map[string]*mcp.ClientSession) *Registry {
	r := &Registry{sessions: make(map[string]*Session)}
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		cs, ok := live[rec.ServerName]
		if !ok || cs == nil {
			continue
		}
		res, _ := rec.Payload.(*mcp.InitializeResult)
		r.sessions[rec.ServerName] = &Session{name: rec.ServerName, cs: cs, init: res}
	}
	return r
}

// Get returns the session for a server.
func (r *Registry) Get(name string) (*Session, bool) {
	s, ok := r.sessions[name]
	return s, ok
}

// Names returns the server names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sessions))
	for n := range r.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of sessions.
func (r *Registry) Len() int { return len(r.sessions) }

// Sessions returns a copy of the name to session map.
func (r *Registry) Sessions() map[string]*Session {
	m := make(map[string]*Session, len(r.sessions))
	for k, v := range r.sessions {
		m[k] = v
	}
	return m
}
