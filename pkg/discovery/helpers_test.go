package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/broker/memory"
	"github.com/rhuss/sdvagent/pkg/mqttmcp"
)

type lookupArgs struct {
	Key string `json:"key"`
}

// startToolServer runs an MCP server with a "lookup" tool and a "fail"
// tool on the broker until the test ends.
func startToolServer(t *testing.T, b *memory.Broker, name string) {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: "1.0.0"}, nil)
	mcp.AddTool(srv, &mcp.Tool{Name: "lookup", Description: "Look up a key"},
		func(ctx context.Context, req *mcp.CallToolRequest, in lookupArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: name + ":" + in.Key}}}, nil, nil
		})
	mcp.AddTool(srv, &mcp.Tool{Name: "fail", Description: "Always fails"},
		func(ctx context.Context, req *mcp.CallToolRequest, in lookupArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "no data for " + in.Key}}}, nil, nil
		})

	conn, err := b.Dial(context.Background(), broker.Endpoint{ClientID: "server-" + name, Will: mqttmcp.PresenceWill(name)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s := &mqttmcp.Server{Conn: conn, Name: name, Version: "1.0.0", MCP: srv}
		if err := s.Serve(ctx); err != nil {
			t.Errorf("serve %s: %v", name, err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = conn.Close()
	})
	waitRetained(t, b, name)
}

// startRejectingServer announces name and answers every initialize
// request with a JSON-RPC error.
func startRejectingServer(t *testing.T, b *memory.Broker, name string) {
	t.Helper()
	conn, err := b.Dial(context.Background(), broker.Endpoint{ClientID: "rejecting-" + name})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	err = conn.Subscribe(ctx, mqttmcp.RequestFilter(name), func(m broker.Message) {
		clientID, ok := mqttmcp.ClientIDFromRequest(name, m.Topic)
		if !ok {
			return
		}
		msg, err := jsonrpc.DecodeMessage(m.Payload)
		if err != nil {
			return
		}
		req, ok := msg.(*jsonrpc.Request)
		if !ok || !req.IsCall() {
			return
		}
		data, err := jsonrpc.EncodeMessage(&jsonrpc.Response{
			ID:    req.ID,
			Error: &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "vehicle bus unavailable"},
		})
		if err != nil {
			return
		}
		go func() { _ = conn.Publish(ctx, mqttmcp.ResponseTopic(name, clientID), data, false) }()
	})
	if err != nil {
		t.Fatal(err)
	}
	announce(t, b, name)
}

// announce publishes a retained presence for name without a server.
func announce(t *testing.T, b *memory.Broker, name string) {
	t.Helper()
	conn, err := b.Dial(context.Background(), broker.Endpoint{ClientID: "announcer"})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	data, err := mqttmcp.EncodePresence(mqttmcp.Presence{ServerID: "id-" + name, ServerName: name})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Publish(context.Background(), mqttmcp.PresenceTopic(name), data, true); err != nil {
		t.Fatal(err)
	}
}

func waitRetained(t *testing.T, b *memory.Broker, name string) {
	t.Helper()
	eventually(t, "presence of "+name, func() bool {
		_, ok := b.Retained(mqttmcp.PresenceTopic(name))
		return ok
	})
}

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
