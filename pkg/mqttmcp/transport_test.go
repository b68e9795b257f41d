package mqttmcp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/broker/memory"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"text to echo back"`
}

func newEchoServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "echo", Version: "0.1.0"}, nil)
	mcp.AddTool(srv, &mcp.Tool{Name: "echo", Description: "Echo the input"},
		func(ctx context.Context, req *mcp.CallToolRequest, in echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: in.Text}}}, nil, nil
		})
	return srv
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dial(t *testing.T, b *memory.Broker, clientID string) broker.Conn {
	t.Helper()
	c, err := b.Dial(context.Background(), broker.Endpoint{Host: "memory", Port: 1883, ClientID: clientID})
	if err != nil {
		t.Fatalf("dial %s: %v", clientID, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func startServer(t *testing.T, b *memory.Broker, name string) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	s := &Server{
		Conn:        dial(t, b, "server-"+name),
		Name:        name,
		Description: "echo test server",
		Version:     "0.1.0",
		MCP:         newEchoServer(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	eventually(t, "presence", func() bool {
		_, ok := b.Retained(PresenceTopic(name))
		return ok
	})
	return s, cancel, done
}

func TestClientServerRoundTrip(t *testing.T) {
	b := memory.New()
	s, stop, done := startServer(t, b, "sdv/test/echo")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, &ClientTransport{
		Conn:       dial(t, b, "client-1"),
		ServerName: "sdv/test/echo",
		ClientID:   "client-1",
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := cs.InitializeResult().ServerInfo.Name; got != "echo" {
		t.Errorf("server name = %q, want echo", got)
	}

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo" {
		t.Fatalf("tools = %+v, want [echo]", tools.Tools)
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hello"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || len(res.Content) != 1 {
		t.Fatalf("CallTool result = %+v", res)
	}
	if tc, ok := res.Content[0].(*mcp.TextContent); !ok || tc.Text != "hello" {
		t.Errorf("content = %+v, want text hello", res.Content[0])
	}

	if s.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1", s.Sessions())
	}

	if err := cs.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	eventually(t, "server session cleanup", func() bool { return s.Sessions() == 0 })

	stop()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if _, ok := b.Retained(PresenceTopic("sdv/test/echo")); ok {
		t.Error("presence should be withdrawn after shutdown")
	}
}

func TestServerIgnoresNonInitialize(t *testing.T) {
	b := memory.New()
	s, stop, _ := startServer(t, b, "sdv/test/echo")
	defer stop()

	data, err := jsonrpc.EncodeMessage(&jsonrpc.Request{
		ID:     mustID(t, 1),
		Method: "tools/list",
	})
	if err != nil {
		t.Fatal(err)
	}
	c := dial(t, b, "stray")
	if err := c.Publish(context.Background(), RequestTopic("sdv/test/echo", "stray"), data, false); err != nil {
		t.Fatal(err)
	}
	// Malformed payloads are dropped as well.
	if err := c.Publish(context.Background(), RequestTopic("sdv/test/echo", "stray"), []byte("{"), false); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if s.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", s.Sessions())
	}
}

func TestServerRequiresFields(t *testing.T) {
	s := &Server{Name: "x"}
	if err := s.Serve(context.Background()); err == nil {
		t.Error("expected error for missing Conn and MCP")
	}
}

func TestConnectionCloseUnblocksRead(t *testing.T) {
	b := memory.New()
	c := newConnection(dial(t, b, "c"), "c", "mcp/rpc/x/c/request")

	errc := make(chan error, 1)
	go func() {
		_, err := c.Read(context.Background())
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read error = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}

	err := c.Write(context.Background(), &jsonrpc.Request{Method: "ping"})
	if !errors.Is(err, mcp.ErrConnectionClosed) {
		t.Errorf("Write after Close = %v, want ErrConnectionClosed", err)
	}
}

func TestConnectionPreservesOrder(t *testing.T) {
	b := memory.New()
	c := newConnection(dial(t, b, "c"), "c", "mcp/rpc/x/c/request")
	defer c.Close()

	for i := int64(1); i <= 3; i++ {
		data, _ := jsonrpc.EncodeMessage(&jsonrpc.Request{ID: mustID(t, i), Method: "ping"})
		c.deliver(data)
	}
	c.deliver([]byte("garbage"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := int64(1); i <= 3; i++ {
		msg, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		req := msg.(*jsonrpc.Request)
		if req.ID != mustID(t, i) {
			t.Errorf("message %d has id %v", i, req.ID.Raw())
		}
	}
}

func mustID(t *testing.T, n int64) jsonrpc.ID {
	t.Helper()
	id, err := jsonrpc.MakeID(float64(n))
	if err != nil {
		t.Fatalf("MakeID: %v", err)
	}
	return id
}
