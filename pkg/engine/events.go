package engine

import (
	"context"

	"github.com/rhuss/sdvagent/pkg/api"
)

// EventType classifies workflow progress events.
type EventType string

const (
	// EventToolsAvailable lists the tools offered to the model.
	EventToolsAvailable EventType = "tools.available"

	// EventStepStarted marks the start of a workflow step.
	EventStepStarted EventType = "step.started"

	// EventTextDelta carries streamed model text of the agent loop.
	EventTextDelta EventType = "text.delta"

	// EventReasoningDelta carries streamed reasoning of reasoning models.
	EventReasoningDelta EventType = "reasoning.delta"

	// EventToolCallResult reports one executed tool call.
	EventToolCallResult EventType = "tool_call.result"

	// EventReportDelta carries streamed text of the final report.
	EventReportDelta EventType = "report.delta"

	// EventReportDone carries the finished report.
	EventReportDone EventType = "report.done"
)

// Event is a single progress event.
type Event struct {
	Type EventType

	// Step is the workflow step the event belongs to.
	Step string

	// Delta is set for delta events.
	Delta string

	// Tools is set for EventToolsAvailable.
	Tools []string

	// ToolCall is set for EventToolCallResult.
	ToolCall *api.ToolInvocation

	// Report is set for EventReportDone.
	Report *api.Report
}

// EventWriter receives progress events. An error aborts the run.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev Event) error
}

// EventWriterFunc adapts a function to EventWriter.
type EventWriterFunc func(ctx context.Context, ev Event) error

// WriteEvent calls f.
func (f EventWriterFunc) WriteEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops all events.
var Discard EventWriter = EventWriterFunc(func(context.Context, Event) error { return nil })

func writerOrDiscard(w EventWriter) EventWriter {
	if w == nil {
		return Discard
	}
	return w
}
