package mqttmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/observability"
)

// Server exposes an *mcp.Server over MQTT. It announces itself on its
// presence topic and runs one MCP server session per client id.
type Server struct {
	Conn        broker.Conn
	Name        string
	Description string
	Version     string

	// ServerID identifies this instance. A random UUID when empty.
	ServerID string

	MCP *mcp.Server

	mu      sync.Mutex
	ctx     context.Context
	clients map[string]*connection
}

// Serve announces the server and handles client sessions until ctx is
// cancelled. On return the presence is withdrawn and all sessions closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Conn == nil || s.MCP == nil || s.Name == "" {
		return errors.New("mqttmcp: server needs Conn, MCP and Name")
	}
	if s.ServerID == "" {
		s.ServerID = uuid.NewString()
	}

	s.mu.Lock()
	s.ctx = ctx
	s.clients = make(map[string]*connection)
	s.mu.Unlock()

	reqFilter := RequestFilter(s.Name)
	if err := s.Conn.Subscribe(ctx, reqFilter, s.route); err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}

	presence, err := EncodePresence(Presence{
		ServerID:    s.ServerID,
		ServerName:  s.Name,
		Description: s.Description,
		Version:     s.Version,
	})
	if err != nil {
		return fmt.Errorf("encoding presence: %w", err)
	}
	if err := s.Conn.Publish(ctx, PresenceTopic(s.Name), presence, true); err != nil {
		return fmt.Errorf("announcing presence: %w", err)
	}
	slog.Info("tool server online", "server", s.Name, "server_id", s.ServerID)

	<-ctx.Done()
	s.shutdown(reqFilter)
	return nil
}

// Sessions returns the number of live client sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) shutdown(reqFilter string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Conn.Publish(ctx, PresenceTopic(s.Name), nil, true); err != nil && !errors.Is(err, broker.ErrClosed) {
		slog.Warn("withdrawing presence failed", "server", s.Name, "error", err)
	}
	if err := s.Conn.Unsubscribe(ctx, reqFilter); err != nil && !errors.Is(err, broker.ErrClosed) {
		slog.Warn("unsubscribing requests failed", "server", s.Name, "error", err)
	}

	s.mu.Lock()
	clients := s.clients
	s.clients = map[string]*connection{}
	s.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
	slog.Info("tool server offline", "server", s.Name)
}

// route dispatches a request-topic message to the client's connection,
// starting a session on the first initialize request.
func (s *Server) route(m broker.Message) {
	clientID, ok := ClientIDFromRequest(s.Name, m.Topic)
	if !ok {
		return
	}
	msg, err := jsonrpc.DecodeMessage(m.Payload)
	if err != nil {
		slog.Warn("dropping malformed request", "server", s.Name, "client_id", clientID, "error", err)
		return
	}
	req, isReq := msg.(*jsonrpc.Request)

	s.mu.Lock()
	c, exists := s.clients[clientID]
	if isReq && req.Method == methodDisconnected {
		delete(s.clients, clientID)
		s.mu.Unlock()
		if exists {
			debug.Log("mcp", "client disconnected", "server", s.Name, "client_id", clientID)
			c.Close()
		}
		return
	}
	if !exists {
		if s.ctx == nil || s.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		if !isReq || req.Method != "initialize" {
			s.mu.Unlock()
			debug.Log("mcp", "ignoring message for unknown session", "server", s.Name, "client_id", clientID)
			return
		}
		c = newConnection(s.Conn, clientID, ResponseTopic(s.Name, clientID))
		s.clients[clientID] = c
		ctx := s.ctx
		s.mu.Unlock()
		// The initialize request is queued before the session starts reading.
		c.push(msg)
		go s.runSession(ctx, clientID, c)
		return
	}
	s.mu.Unlock()
	c.push(msg)
}

func (s *Server) runSession(ctx context.Context, clientID string, c *connection) {
	ss, err := s.MCP.Connect(ctx, &boundTransport{conn: c}, nil)
	if err != nil {
		slog.Warn("starting MCP session failed", "server", s.Name, "client_id", clientID, "error", err)
		s.drop(clientID, c)
		return
	}
	observability.ToolServerSessionsActive.WithLabelValues(s.Name).Inc()
	slog.Info("client session started", "server", s.Name, "client_id", clientID)

	go func() {
		<-c.done()
		ss.Close()
	}()
	ss.Wait()

	observability.ToolServerSessionsActive.WithLabelValues(s.Name).Dec()
	s.drop(clientID, c)
	debug.Log("mcp", "client session ended", "server", s.Name, "client_id", clientID)
}

// drop removes c if it is still the registered connection for clientID.
func (s *Server) drop(clientID string, c *connection) {
	s.mu.Lock()
	if s.clients[clientID] == c {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()
	c.Close()
}

// boundTransport hands an already routed connection to the MCP server.
type boundTransport struct {
	conn *connection
}

func (t *boundTransport) Connect(context.Context) (mcp.Connection, error) {
	return t.conn, nil
}
