// Command weather-server announces the history weather tool server on the
// MQTT broker. It proxies the juhe history weather API; the key comes from
// JUHE_API_KEY or toolserver.weather.api_key.
package main

import (
	"context"
	"errors"
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
	"github.com/rhuss/sdvagent/pkg/toolserver/weather"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("weather server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.DebugOptions())

	wc := cfg.ToolServer.Weather
	if wc.APIKey == "" {
		return errors.New("weather API key is required (JUHE_API_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := weather.NewServer(weather.NewClient(weather.Config{
		BaseURL:       wc.BaseURL,
		APIKey:        wc.APIKey,
		Timeout:       wc.Timeout,
		ProvincesFile: wc.ProvincesFile,
	}), version)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return observability.Serve(gctx, cfg.Metrics.Addr, cfg.Metrics.Path) })
	}
	g.Go(func() error {
		slog.Info("weather server starting", "name", weather.ServerName, "broker", cfg.Broker.Endpoint("").Address())
		return toolserver.Run(gctx, cfg.Broker.Dialer(), toolserver.Options{
			Endpoint:    cfg.Broker.Endpoint(""),
			Name:        weather.ServerName,
			Description: weather.Description,
			Version:     version,
		}, srv)
	})
	return g.Wait()
}
