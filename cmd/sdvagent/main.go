// Command sdvagent discovers the tool servers announced on an MQTT broker
// and generates driving-behavior reports with them.
//
// Configuration is read from a YAML file (--config, SDVAGENT_CONFIG,
// ./config.yaml or /etc/sdvagent/config.yaml) with environment overrides
// such as MQTT_BROKER, SFAPI_KEY and MODEL_NAME.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("sdvagent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}

// app carries the loaded configuration to the subcommands.
type app struct {
	configPath string
	tenant     string
	local      bool
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "sdvagent",
		Short: "Driving-behavior reports from MQTT-discovered MCP tool servers",
		Long: `sdvagent connects to an MQTT broker, discovers the MCP tool servers
announced under mcp/presence/, and runs an LLM agent that queries them to
write a driving-behavior report for a vehicle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			debug.Init(cfg.Logging.DebugOptions())
			a.cfg = cfg
			if a.tenant != "" {
				cmd.SetContext(storage.SetTenant(cmd.Context(), a.tenant))
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&a.tenant, "tenant", "", "Scope stored reports to a tenant")
	cmd.PersistentFlags().BoolVar(&a.local, "local", false, "Run the bundled tool servers on an in-process broker")

	cmd.AddCommand(
		newReportCommand(a),
		newDiscoverCommand(a),
		newReportsCommand(a),
		newVersionCommand(),
	)
	return cmd
}
