package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/provider"
)

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// StreamState carries what a stream has accumulated between chunks.
type StreamState struct {
	ToolCalls    map[int]*ToolCallBuffer
	FinishReason string
	Usage        *api.Usage
}

// NewStreamState returns an empty StreamState.
func NewStreamState() *StreamState {
	return &StreamState{ToolCalls: make(map[int]*ToolCallBuffer)}
}

// ParseSSEStream reads Chat Completions SSE chunks from body, translates
// them to ProviderEvent values and sends them on ch. Exactly one done or
// error event ends the stream; a cancelled context ends it silently. The
// channel is not closed by this function.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Malformed chunks are logged and skipped.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	state := NewStreamState()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// Ignore empty lines, comments (":") and other SSE fields.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == "[DONE]" {
			break
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", Truncate(payload, 200),
			)
			continue
		}

		TranslateChunk(&chunk, state, ch)
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("SSE stream read error: " + err.Error()),
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Backends that omit finish_reason still get their tool calls flushed.
	FlushToolCalls(state.ToolCalls, ch)

	if state.FinishReason == "content_filter" {
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewModelError("response blocked by the backend content filter"),
		}
		return
	}
	ch <- provider.ProviderEvent{
		Type:         provider.ProviderEventDone,
		FinishReason: state.FinishReason,
		Usage:        state.Usage,
	}
}

// TranslateChunk sends the delta events of a single chunk and records its
// finish reason and usage in state.
func TranslateChunk(chunk *ChatCompletionChunk, state *StreamState, ch chan<- provider.ProviderEvent) {
	if chunk.Usage != nil {
		u := chunk.Usage.toAPI()
		state.Usage = &u
	}
	if len(chunk.Choices) == 0 {
		return
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	for _, tc := range delta.ToolCalls {
		buf, exists := state.ToolCalls[tc.Index]
		if !exists {
			// First chunk for this index carries the id and function name.
			buf = &ToolCallBuffer{ID: tc.ID, Name: tc.Function.Name}
			if buf.ID == "" {
				buf.ID = api.NewCallID()
			}
			state.ToolCalls[tc.Index] = buf
		} else if buf.Name == "" && tc.Function.Name != "" {
			buf.Name = tc.Function.Name
		}
		buf.Args.WriteString(tc.Function.Arguments)

		ch <- provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallDelta,
			ToolCallIndex: tc.Index,
			ToolCallID:    buf.ID,
			FunctionName:  tc.Function.Name,
			Delta:         tc.Function.Arguments,
		}
	}

	// Reasoning models (e.g. DeepSeek R1) stream reasoning before content.
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventReasoningDelta,
			Delta: *delta.ReasoningContent,
		}
	}

	if delta.Content != nil && *delta.Content != "" {
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventTextDelta,
			Delta: *delta.Content,
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		state.FinishReason = *choice.FinishReason
		FlushToolCalls(state.ToolCalls, ch)
	}
}

// FlushToolCalls emits ProviderEventToolCallDone for each buffered tool call
// in index order and clears the buffer.
func FlushToolCalls(toolCalls map[int]*ToolCallBuffer, ch chan<- provider.ProviderEvent) {
	indexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		buf := toolCalls[idx]
		ch <- provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallDone,
			ToolCallIndex: idx,
			ToolCallID:    buf.ID,
			FunctionName:  buf.Name,
			Delta:         buf.Args.String(),
		}
		delete(toolCalls, idx)
	}
}

// Truncate limits a string to maxLen bytes for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
