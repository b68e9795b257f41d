package provider

import (
	"encoding/json"

	"github.com/rhuss/sdvagent/pkg/api"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ProviderCapabilities declares what features the backend supports.
type ProviderCapabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// Reasoning indicates whether the provider can stream reasoning content.
	Reasoning bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int
}

// ProviderRequest is the backend-facing request.
type ProviderRequest struct {
	Model       string            `json:"model"`
	Messages    []ProviderMessage `json:"messages"`
	Tools       []ProviderTool    `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// ProviderMessage represents a message in the provider's conversation format.
type ProviderMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ProviderToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ProviderToolCall represents a tool call entry in an assistant message.
type ProviderToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function ProviderFunctionCall `json:"function"`
}

// ProviderFunctionCall holds the function name and arguments for a tool call.
type ProviderFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderTool represents a tool definition in provider format.
type ProviderTool struct {
	Type     string              `json:"type"`
	Function ProviderFunctionDef `json:"function"`
}

// ProviderFunctionDef holds a function definition for tool use.
type ProviderFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ProviderResponse is the backend's complete non-streaming response.
type ProviderResponse struct {
	Content          string             `json:"content"`
	ReasoningContent string             `json:"reasoning_content,omitempty"`
	ToolCalls        []ProviderToolCall `json:"tool_calls,omitempty"`
	Usage            api.Usage          `json:"usage"`
	Model            string             `json:"model"`
	FinishReason     string             `json:"finish_reason"`
}

// ProviderEventType classifies a streaming event from the backend.
type ProviderEventType int

const (
	ProviderEventTextDelta      ProviderEventType = iota // Incremental text content
	ProviderEventToolCallDelta                           // Incremental tool call arguments
	ProviderEventToolCallDone                            // Tool call complete
	ProviderEventReasoningDelta                          // Incremental reasoning content
	ProviderEventDone                                    // Stream finished
	ProviderEventError                                   // Stream error
)

func (t ProviderEventType) String() string {
	switch t {
	case ProviderEventTextDelta:
		return "text_delta"
	case ProviderEventToolCallDelta:
		return "tool_call_delta"
	case ProviderEventToolCallDone:
		return "tool_call_done"
	case ProviderEventReasoningDelta:
		return "reasoning_delta"
	case ProviderEventDone:
		return "done"
	case ProviderEventError:
		return "error"
	default:
		return "unknown"
	}
}

// ProviderEvent is a single streaming event from the backend.
type ProviderEvent struct {
	// Type indicates what kind of event this is.
	Type ProviderEventType

	// Delta contains incremental text or argument data. For tool call done
	// events it holds the complete arguments.
	Delta string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int

	// ToolCallID is the identifier for the tool call.
	ToolCallID string

	// FunctionName is the function name (populated on first tool call event).
	FunctionName string

	// FinishReason is set on done events.
	FinishReason string

	// Usage is populated on the final event when the backend reports it.
	Usage *api.Usage

	// Err is populated if the stream encountered an error.
	Err error
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
