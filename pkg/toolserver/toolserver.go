// Package toolserver runs MCP tool servers on an MQTT broker.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/mqttmcp"
)

// Options configure a tool server process.
type Options struct {
	// Endpoint is the broker to serve on. The client id defaults to the
	// server name plus a random suffix, and the presence last will is
	// always installed.
	Endpoint broker.Endpoint

	Name        string
	Description string
	Version     string
}

// Run connects to the broker and serves srv until ctx is cancelled.
func Run(ctx context.Context, dialer broker.Dialer, opts Options, srv *mcp.Server) error {
	if opts.Name == "" {
		return errors.New("toolserver: name is required")
	}
	serverID := uuid.NewString()
	ep := opts.Endpoint
	if ep.ClientID == "" {
		ep.ClientID = strings.ReplaceAll(opts.Name, "/", "-") + "-" + serverID[:8]
	}
	ep.Will = mqttmcp.PresenceWill(opts.Name)

	conn, err := dialer.Dial(ctx, ep)
	if err != nil {
		return fmt.Errorf("connecting to broker %s: %w", ep.Address(), err)
	}
	defer conn.Close()

	s := &mqttmcp.Server{
		Conn:        conn,
		Name:        opts.Name,
		Description: opts.Description,
		Version:     opts.Version,
		ServerID:    serverID,
		MCP:         srv,
	}
	return s.Serve(ctx)
}

// TextResult wraps text in a tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
