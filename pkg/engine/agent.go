package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/observability"
	"github.com/rhuss/sdvagent/pkg/provider"
	"github.com/rhuss/sdvagent/pkg/tools"
)

// Agent runs the streaming tool-calling loop.
type Agent struct {
	provider provider.Provider
	cfg      Config
}

// NewAgent creates an Agent. The provider must not be nil.
func NewAgent(p provider.Provider, cfg Config) (*Agent, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Agent{provider: p, cfg: cfg}, nil
}

// AgentResult is the outcome of an agent run.
type AgentResult struct {
	// Content is the text of the final turn.
	Content string

	// ToolCalls lists every executed call in order.
	ToolCalls []api.ToolInvocation

	Usage api.Usage
	Turns int

	// Incomplete is set when MaxAgenticTurns ran out while the model was
	// still calling tools.
	Incomplete bool
}

// turnOutput is what one streamed turn produced.
type turnOutput struct {
	text         string
	calls        []tools.ToolCall
	usage        *api.Usage
	finishReason string
}

// Definitions returns the tools offered to the model, in executor order,
// without duplicate names and filtered by AllowedTools.
func (a *Agent) Definitions(ctx context.Context) ([]tools.Definition, error) {
	seen := make(map[string]bool)
	var defs []tools.Definition
	for _, exec := range a.cfg.Executors {
		src, ok := exec.(tools.DefinitionSource)
		if !ok {
			continue
		}
		list, err := src.Definitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s tools: %w", exec.Kind(), err)
		}
		for _, d := range list {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			defs = append(defs, d)
		}
	}
	return tools.FilterDefinitions(defs, a.cfg.AllowedTools), nil
}

// Run executes the agentic loop over messages. Text deltas are written as
// EventTextDelta, executed tools as EventToolCallResult.
func (a *Agent) Run(ctx context.Context, step string, messages []provider.ProviderMessage, w EventWriter) (*AgentResult, error) {
	w = writerOrDiscard(w)

	defs, err := a.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	req := a.newRequest(messages)
	for _, d := range defs {
		req.Tools = append(req.Tools, provider.ProviderTool{
			Type: "function",
			Function: provider.ProviderFunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	if apiErr := provider.ValidateCapabilities(a.provider.Capabilities(), req); apiErr != nil {
		return nil, apiErr
	}

	result := &AgentResult{}
	for turn := 0; turn < a.cfg.maxTurns(); turn++ {
		result.Turns++

		out, err := a.streamTurn(ctx, req, func(ev provider.ProviderEvent) error {
			switch ev.Type {
			case provider.ProviderEventTextDelta:
				return w.WriteEvent(ctx, Event{Type: EventTextDelta, Step: step, Delta: ev.Delta})
			case provider.ProviderEventReasoningDelta:
				return w.WriteEvent(ctx, Event{Type: EventReasoningDelta, Step: step, Delta: ev.Delta})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if out.usage != nil {
			result.Usage.Add(*out.usage)
		}
		result.Content = out.text

		// No tool calls: final answer.
		if len(out.calls) == 0 {
			debug.Log("engine", "agent finished", "step", step, "turns", result.Turns)
			return result, nil
		}

		filtered := tools.FilterAllowedTools(out.calls, a.cfg.AllowedTools)
		results := a.executeTools(ctx, filtered.Allowed)
		byID := make(map[string]tools.ToolResult, len(out.calls))
		for _, r := range append(results, filtered.Rejected...) {
			byID[r.CallID] = r
		}

		// The assistant message with tool_calls must precede the tool
		// results.
		req.Messages = append(req.Messages, buildAssistantToolCallMessage(out.text, out.calls))
		for _, call := range out.calls {
			r := byID[call.ID]
			inv := api.ToolInvocation{
				Tool:      call.Name,
				Arguments: call.Arguments,
				Output:    r.Output,
				IsError:   r.IsError,
			}
			result.ToolCalls = append(result.ToolCalls, inv)
			if err := w.WriteEvent(ctx, Event{Type: EventToolCallResult, Step: step, ToolCall: &inv}); err != nil {
				return nil, err
			}
			req.Messages = append(req.Messages, provider.ProviderMessage{
				Role:       provider.RoleTool,
				Content:    r.Output,
				ToolCallID: call.ID,
			})
		}
	}

	slog.Warn("agent stopped at max turns", "step", step, "turns", result.Turns)
	result.Incomplete = true
	return result, nil
}

func (a *Agent) newRequest(messages []provider.ProviderMessage) *provider.ProviderRequest {
	return &provider.ProviderRequest{
		Model:       a.cfg.Model,
		Messages:    append([]provider.ProviderMessage(nil), messages...),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.maxTokens(),
		Stream:      true,
	}
}

// streamTurn streams one provider turn, passing every event to onEvent and
// assembling text and tool calls. Provider metrics are recorded here.
func (a *Agent) streamTurn(ctx context.Context, req *provider.ProviderRequest, onEvent func(provider.ProviderEvent) error) (*turnOutput, error) {
	start := time.Now()
	out, err := a.consumeStream(ctx, req, onEvent)
	a.recordProviderMetrics(start, out, err)
	return out, err
}

func (a *Agent) consumeStream(ctx context.Context, req *provider.ProviderRequest, onEvent func(provider.ProviderEvent) error) (*turnOutput, error) {
	eventCh, err := a.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	// Drain on early return so the provider goroutine can exit.
	defer func() {
		for range eventCh {
		}
	}()

	out := &turnOutput{}
	var text strings.Builder
	done := false
	for ev := range eventCh {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch ev.Type {
		case provider.ProviderEventError:
			return nil, ev.Err
		case provider.ProviderEventTextDelta:
			text.WriteString(ev.Delta)
		case provider.ProviderEventToolCallDone:
			out.calls = append(out.calls, tools.ToolCall{
				ID:        ev.ToolCallID,
				Name:      ev.FunctionName,
				Arguments: ev.Delta,
			})
		case provider.ProviderEventDone:
			out.usage = ev.Usage
			out.finishReason = ev.FinishReason
			done = true
		}
		if err := onEvent(ev); err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !done {
		return nil, api.NewServerError("provider stream ended without completion")
	}
	out.text = text.String()
	return out, nil
}

func (a *Agent) recordProviderMetrics(start time.Time, out *turnOutput, err error) {
	name, model := a.provider.Name(), a.cfg.Model
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ProviderRequestsTotal.WithLabelValues(name, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(name, model).Observe(time.Since(start).Seconds())
	if out != nil && out.usage != nil {
		observability.ProviderTokensTotal.WithLabelValues(name, model, "input").Add(float64(out.usage.InputTokens))
		observability.ProviderTokensTotal.WithLabelValues(name, model, "output").Add(float64(out.usage.OutputTokens))
	}
}

// executeTools runs the calls concurrently or one at a time. Results are
// in call order.
func (a *Agent) executeTools(ctx context.Context, calls []tools.ToolCall) []tools.ToolResult {
	results := make([]tools.ToolResult, len(calls))
	if !a.cfg.ParallelToolCalls {
		for i, call := range calls {
			results[i] = a.executeTool(ctx, call)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc tools.ToolCall) {
			defer wg.Done()
			results[idx] = a.executeTool(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (a *Agent) executeTool(ctx context.Context, tc tools.ToolCall) tools.ToolResult {
	if ctx.Err() != nil {
		return tools.ToolResult{CallID: tc.ID, Output: "context cancelled", IsError: true}
	}

	exec, ok := tools.Find(a.cfg.Executors, tc.Name)
	if !ok {
		observability.ToolExecutionsTotal.WithLabelValues(tc.Name, "error").Inc()
		return tools.ToolResult{CallID: tc.ID, Output: "no executor found for tool " + tc.Name, IsError: true}
	}

	start := time.Now()
	result, err := exec.Execute(ctx, tc)
	if err != nil {
		slog.Warn("tool execution error",
			"tool", tc.Name,
			"call_id", tc.ID,
			"error", err.Error(),
		)
		observability.ToolExecutionsTotal.WithLabelValues(tc.Name, "error").Inc()
		return tools.ToolResult{CallID: tc.ID, Output: err.Error(), IsError: true}
	}

	status := "success"
	if result.IsError {
		status = "error"
	}
	observability.ToolExecutionsTotal.WithLabelValues(tc.Name, status).Inc()
	debug.Log("tools", "tool executed",
		"tool", tc.Name,
		"status", status,
		"duration", time.Since(start),
		"output", debug.Truncate(result.Output, 200))
	return *result
}

// buildAssistantToolCallMessage creates the assistant message that carries
// the tool calls of a turn.
func buildAssistantToolCallMessage(text string, calls []tools.ToolCall) provider.ProviderMessage {
	toolCalls := make([]provider.ProviderToolCall, 0, len(calls))
	for _, tc := range calls {
		toolCalls = append(toolCalls, provider.ProviderToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return provider.ProviderMessage{
		Role:      provider.RoleAssistant,
		Content:   text,
		ToolCalls: toolCalls,
	}
}
