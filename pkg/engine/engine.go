package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/prompt"
	"github.com/rhuss/sdvagent/pkg/provider"
	"github.com/rhuss/sdvagent/pkg/storage"
)

// Engine runs the report workflow.
type Engine struct {
	agent   *Agent
	prompts *prompt.Loader
	store   storage.ReportStore
	cfg     Config
}

// New creates a new Engine. The provider and prompts must not be nil. The
// store can be nil, in which case reports are not persisted.
func New(p provider.Provider, prompts *prompt.Loader, store storage.ReportStore, cfg Config) (*Engine, error) {
	agent, err := NewAgent(p, cfg)
	if err != nil {
		return nil, err
	}
	if prompts == nil {
		return nil, fmt.Errorf("engine: prompts must not be nil")
	}
	return &Engine{agent: agent, prompts: prompts, store: store, cfg: cfg}, nil
}

// Agent returns the engine's agent.
func (e *Engine) Agent() *Agent { return e.agent }

// CreateReport runs both workflow steps for one vehicle and returns the
// report. Invalid input fails with *api.APIError before any model call.
func (e *Engine) CreateReport(ctx context.Context, input api.ReportInput, w EventWriter) (*api.Report, error) {
	w = writerOrDiscard(w)

	input.Normalize()
	if apiErr := input.Validate(); apiErr != nil {
		return nil, apiErr
	}
	data := prompt.Data{VehicleID: input.VehicleID, Query: input.Query}
	started := time.Now()

	defs, err := e.agent.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	if err := w.WriteEvent(ctx, Event{Type: EventToolsAvailable, Tools: names}); err != nil {
		return nil, err
	}

	system, err := e.prompts.System(input.Language, data)
	if err != nil {
		return nil, err
	}
	enrich, err := e.prompts.Step(input.Language, prompt.StepEnrichData, data)
	if err != nil {
		return nil, err
	}
	genReport, err := e.prompts.Step(input.Language, prompt.StepGenReport, data)
	if err != nil {
		return nil, err
	}

	memory := NewMemory(e.cfg.memoryTokenLimit())
	memory.Put(
		provider.ProviderMessage{Role: provider.RoleSystem, Content: system},
		provider.ProviderMessage{Role: provider.RoleUser, Content: enrich},
	)

	analysis, err := e.enrichData(ctx, memory, w)
	if err != nil {
		return nil, err
	}
	memory.Put(provider.ProviderMessage{Role: provider.RoleAssistant, Content: analysis.Content})
	memory.Put(provider.ProviderMessage{Role: provider.RoleUser, Content: genReport})

	content, usage, err := e.generateReport(ctx, memory, w)
	if err != nil {
		return nil, err
	}
	usage.Add(analysis.Usage)

	report := &api.Report{
		ID:        api.NewReportID(),
		VehicleID: input.VehicleID,
		Query:     input.Query,
		Language:  input.Language,
		Model:     e.cfg.Model,
		CreatedAt: time.Now().UTC(),
		Servers:   append([]string(nil), e.cfg.Servers...),
		Analysis:  analysis.Content,
		Content:   content,
		ToolCalls: analysis.ToolCalls,
		Usage:     usage,
	}

	if e.store != nil {
		if err := e.store.SaveReport(ctx, report); err != nil {
			return report, fmt.Errorf("saving report %s: %w", report.ID, err)
		}
	}

	slog.Info("report generated",
		"report_id", report.ID,
		"vehicle_id", report.VehicleID,
		"tool_calls", len(report.ToolCalls),
		"total_tokens", report.Usage.TotalTokens,
		"duration", time.Since(started))

	if err := w.WriteEvent(ctx, Event{Type: EventReportDone, Report: report}); err != nil {
		return report, err
	}
	return report, nil
}

// enrichData runs the tool-calling agent over the system and enrich_data
// prompts.
func (e *Engine) enrichData(ctx context.Context, memory *Memory, w EventWriter) (*AgentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.stepTimeout())
	defer cancel()

	if err := w.WriteEvent(ctx, Event{Type: EventStepStarted, Step: prompt.StepEnrichData}); err != nil {
		return nil, err
	}
	res, err := e.agent.Run(ctx, prompt.StepEnrichData, memory.Get(), w)
	if err != nil {
		return nil, stepError(prompt.StepEnrichData, err)
	}
	if res.Incomplete {
		slog.Warn("data enrichment incomplete, continuing with partial data", "turns", res.Turns)
	}
	return res, nil
}

// generateReport streams a plain chat completion over the memory.
func (e *Engine) generateReport(ctx context.Context, memory *Memory, w EventWriter) (string, api.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.stepTimeout())
	defer cancel()

	if err := w.WriteEvent(ctx, Event{Type: EventStepStarted, Step: prompt.StepGenReport}); err != nil {
		return "", api.Usage{}, err
	}

	req := e.agent.newRequest(memory.Get())
	out, err := e.agent.streamTurn(ctx, req, func(ev provider.ProviderEvent) error {
		if ev.Type == provider.ProviderEventTextDelta {
			return w.WriteEvent(ctx, Event{Type: EventReportDelta, Step: prompt.StepGenReport, Delta: ev.Delta})
		}
		return nil
	})
	if err != nil {
		return "", api.Usage{}, stepError(prompt.StepGenReport, err)
	}

	var usage api.Usage
	if out.usage != nil {
		usage = *out.usage
	}
	content := strings.TrimSpace(out.text)
	if content == "" {
		return "", usage, stepError(prompt.StepGenReport, api.NewModelError("model returned an empty report"))
	}
	return content, usage, nil
}

func stepError(step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("step %s timed out: %w", step, err)
	}
	return fmt.Errorf("step %s: %w", step, err)
}
