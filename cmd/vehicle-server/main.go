// Command vehicle-server announces the vehicle data tool server on the
// MQTT broker and answers driving-behavior queries.
//
// Configuration is read like sdvagent's (SDVAGENT_CONFIG, ./config.yaml,
// MQTT_BROKER, MQTT_PORT). toolserver.vehicle.data_dir adds vehicle files
// next to the bundled sample data.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/observability"
	"github.com/rhuss/sdvagent/pkg/toolserver"
	"github.com/rhuss/sdvagent/pkg/toolserver/vehicle"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("vehicle server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.DebugOptions())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := vehicle.NewServer(vehicle.NewDataset(cfg.ToolServer.Vehicle.DataDir), version)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return observability.Serve(gctx, cfg.Metrics.Addr, cfg.Metrics.Path) })
	}
	g.Go(func() error {
		slog.Info("vehicle server starting", "name", vehicle.ServerName, "broker", cfg.Broker.Endpoint("").Address())
		return toolserver.Run(gctx, cfg.Broker.Dialer(), toolserver.Options{
			Endpoint:    cfg.Broker.Endpoint(""),
			Name:        vehicle.ServerName,
			Description: vehicle.Description,
			Version:     version,
		}, srv)
	})
	return g.Wait()
}
