package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/engine"
	"github.com/rhuss/sdvagent/pkg/observability"
	"github.com/rhuss/sdvagent/pkg/prompt"
)

func newReportCommand(a *app) *cobra.Command {
	var (
		input  api.ReportInput
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a driving-behavior report for a vehicle",
		Long: `Discover the tool servers, let the model collect the vehicle's driving
data and write a report. Progress goes to stderr, the report to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input.Language == "" {
				input.Language = a.cfg.Agent.Language
			}
			if err := a.cfg.ValidateForReports(); err != nil {
				return err
			}
			dialer, stop := a.brokerDialer(cmd.Context())
			defer stop()
			return runReport(cmd.Context(), a.cfg, dialer, input, cmd.OutOrStdout(), cmd.ErrOrStderr(), asJSON)
		},
	}
	cmd.Flags().StringVar(&input.VehicleID, "vehicle", "", "Vehicle ID (required)")
	cmd.Flags().StringVar(&input.Query, "query", "", "Optional focus for the analysis")
	cmd.Flags().StringVar(&input.Language, "lang", "", "Prompt language: zh or en (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("vehicle")
	return cmd
}

// runReport runs the workflow next to the metrics server. The metrics
// server stops when the workflow ends.
func runReport(ctx context.Context, cfg *config.Config, dialer broker.Dialer, input api.ReportInput, stdout, stderr io.Writer, asJSON bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return observability.Serve(gctx, cfg.Metrics.Addr, cfg.Metrics.Path) })
	}

	var report *api.Report
	g.Go(func() error {
		defer cancel()
		var err error
		report, err = generate(gctx, cfg, dialer, input, newProgressWriter(stdout, stderr, !asJSON))
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return nil
}

func generate(ctx context.Context, cfg *config.Config, dialer broker.Dialer, input api.ReportInput, w engine.EventWriter) (*api.Report, error) {
	prov, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	defer prov.Close()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	}

	ts, err := connectTools(ctx, cfg, dialer)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ts.Close(); err != nil {
			slog.Warn("closing tool sessions failed", "error", err)
		}
	}()

	temperature := cfg.LLM.Temperature
	eng, err := engine.New(prov, prompt.NewLoader(cfg.Prompts.Dir), store, engine.Config{
		Model:             cfg.LLM.Model,
		Temperature:       &temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		MaxAgenticTurns:   cfg.Agent.MaxTurns,
		ParallelToolCalls: cfg.Agent.ParallelToolCalls,
		AllowedTools:      cfg.Agent.AllowedTools,
		Executors:         ts.executors,
		Servers:           ts.servers,
		StepTimeout:       cfg.Agent.StepTimeout,
		MemoryTokenLimit:  cfg.Agent.MemoryTokenLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return eng.CreateReport(ctx, input, w)
}

// progressWriter prints workflow events. Step progress and tool calls go
// to stderr; the streamed report goes to stdout when streaming is on.
type progressWriter struct {
	stdout io.Writer
	stderr io.Writer
	stream bool
}

func newProgressWriter(stdout, stderr io.Writer, stream bool) *progressWriter {
	return &progressWriter{stdout: stdout, stderr: stderr, stream: stream}
}

func (p *progressWriter) WriteEvent(_ context.Context, ev engine.Event) error {
	var err error
	switch ev.Type {
	case engine.EventToolsAvailable:
		_, err = fmt.Fprintf(p.stderr, "tools: %v\n", ev.Tools)
	case engine.EventStepStarted:
		_, err = fmt.Fprintf(p.stderr, "==> %s\n", ev.Step)
	case engine.EventToolCallResult:
		status := "ok"
		if ev.ToolCall.IsError {
			status = "error"
		}
		_, err = fmt.Fprintf(p.stderr, "    %s(%s): %s\n", ev.ToolCall.Tool, ev.ToolCall.Arguments, status)
	case engine.EventReportDelta:
		if p.stream {
			_, err = io.WriteString(p.stdout, ev.Delta)
		}
	case engine.EventReportDone:
		if p.stream {
			_, err = io.WriteString(p.stdout, "\n")
		}
		if err == nil {
			_, err = fmt.Fprintf(p.stderr, "report %s (%d tokens)\n", ev.Report.ID, ev.Report.Usage.TotalTokens)
		}
	}
	return err
}
