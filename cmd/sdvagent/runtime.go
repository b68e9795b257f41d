package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/discovery"
	"github.com/rhuss/sdvagent/pkg/provider/siliconflow"
	"github.com/rhuss/sdvagent/pkg/storage"
	"github.com/rhuss/sdvagent/pkg/storage/memory"
	"github.com/rhuss/sdvagent/pkg/storage/postgres"
	"github.com/rhuss/sdvagent/pkg/tools"
	mcptools "github.com/rhuss/sdvagent/pkg/tools/mcp"
)

// newProvider creates the chat completion provider.
func newProvider(cfg *config.Config) (*siliconflow.Provider, error) {
	prov, err := siliconflow.New(siliconflow.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Timeout:      cfg.LLM.Timeout,
		ModelMapping: cfg.LLM.ModelMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	return prov, nil
}

// openStore creates the configured report store. It returns nil for type
// "none".
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.ReportStore, error) {
	switch cfg.Type {
	case "none":
		slog.Info("storage disabled")
		return nil, nil
	case "memory", "":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// toolSet holds the executors backed by discovered and statically
// configured MCP servers.
type toolSet struct {
	client    *discovery.Client
	executors []tools.ToolExecutor
	servers   []string
	closers   []func() error
}

// connectTools discovers the tool servers on the broker and connects the
// static MCP servers.
func connectTools(ctx context.Context, cfg *config.Config, dialer broker.Dialer) (*toolSet, error) {
	client, err := discovery.Connect(ctx, dialer, cfg.DiscoveryOptions(version))
	if err != nil {
		return nil, fmt.Errorf("discovering tool servers: %w", err)
	}
	ts := &toolSet{client: client}
	ts.closers = append(ts.closers, client.Close)

	discovered := mcptools.NewDiscoveredExecutor(client.Sessions())
	ts.executors = append(ts.executors, discovered)
	ts.servers = append(ts.servers, client.Registry().Names()...)

	static := cfg.MCP.MCPServers()
	if len(static) > 0 {
		clients := make(map[string]*mcptools.MCPClient, len(static))
		for _, sc := range static {
			c := mcptools.NewMCPClient(sc)
			if err := c.Connect(ctx); err != nil {
				for _, cl := range clients {
					_ = cl.Close()
				}
				_ = ts.Close()
				return nil, err
			}
			clients[sc.Name] = c
			ts.servers = append(ts.servers, sc.Name)
		}
		exec := mcptools.NewMCPExecutor(clients)
		ts.executors = append(ts.executors, exec)
		ts.closers = append(ts.closers, exec.Close)
	}
	return ts, nil
}

// Close releases the sessions and the broker connection.
func (ts *toolSet) Close() error {
	var errs []error
	for i := len(ts.closers) - 1; i >= 0; i-- {
		if err := ts.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
