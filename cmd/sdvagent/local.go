package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/broker/memory"
	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/toolserver"
	"github.com/rhuss/sdvagent/pkg/toolserver/vehicle"
	"github.com/rhuss/sdvagent/pkg/toolserver/weather"
)

// localServers runs the bundled tool servers on an in-process broker.
type localServers struct {
	broker *memory.Broker
	count  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startLocalServers starts the vehicle server, and the weather server when
// a weather API key is configured.
func startLocalServers(ctx context.Context, cfg *config.Config) *localServers {
	ctx, cancel := context.WithCancel(ctx)
	ls := &localServers{broker: memory.New(), cancel: cancel}

	ls.start(ctx, vehicle.ServerName, vehicle.Description,
		vehicle.NewServer(vehicle.NewDataset(cfg.ToolServer.Vehicle.DataDir), version))

	if wc := cfg.ToolServer.Weather; wc.APIKey != "" {
		ls.start(ctx, weather.ServerName, weather.Description,
			weather.NewServer(weather.NewClient(weather.Config{
				BaseURL:       wc.BaseURL,
				APIKey:        wc.APIKey,
				Timeout:       wc.Timeout,
				ProvincesFile: wc.ProvincesFile,
			}), version))
	} else {
		slog.Info("weather server not started locally, no API key configured")
	}
	return ls
}

func (ls *localServers) start(ctx context.Context, name, description string, srv *mcp.Server) {
	ls.count++
	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		err := toolserver.Run(ctx, ls.broker, toolserver.Options{
			Name:        name,
			Description: description,
			Version:     version,
		}, srv)
		if err != nil {
			slog.Warn("local tool server stopped", "server", name, "error", err)
		}
	}()
}

// Stop ends the servers and waits for them.
func (ls *localServers) Stop() {
	ls.cancel()
	ls.wg.Wait()
}

// brokerDialer returns the dialer for a command run. In local mode it
// starts the bundled tool servers and discovers exactly those; the
// returned stop function ends them.
func (a *app) brokerDialer(ctx context.Context) (broker.Dialer, func()) {
	if !a.local {
		return a.cfg.Broker.Dialer(), func() {}
	}
	ls := startLocalServers(ctx, a.cfg)
	a.cfg.Discovery.TargetCount = ls.count
	return ls.broker, ls.Stop
}
