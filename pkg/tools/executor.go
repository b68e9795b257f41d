package tools

import (
	"context"
	"encoding/json"
)

// ToolKind classifies where a tool is hosted.
type ToolKind int

const (
	// ToolKindDiscovered is a tool on an MCP server found through MQTT
	// discovery.
	ToolKindDiscovered ToolKind = iota

	// ToolKindMCP is a tool on a statically configured HTTP MCP server.
	ToolKindMCP
)

func (k ToolKind) String() string {
	switch k {
	case ToolKindDiscovered:
		return "discovered"
	case ToolKindMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// ToolExecutor executes tool calls for the tools it owns.
type ToolExecutor interface {
	// Kind returns the type of tools this executor handles.
	Kind() ToolKind

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool. Tool failures are reported in the result;
	// an error means the executor itself is unusable.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// DefinitionSource lists the tools an executor offers to the model.
type DefinitionSource interface {
	Definitions(ctx context.Context) ([]Definition, error)
}

// Definition describes a tool to the model as an OpenAI-style function.
type Definition struct {
	Name        string
	Description string

	// Parameters is the JSON schema of the arguments.
	Parameters json.RawMessage
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	// ID is the call identifier assigned by the model.
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolResult is the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool output text.
	Output string

	// IsError indicates that Output is an error message.
	IsError bool
}

// Find returns the first executor that can run toolName.
func Find(executors []ToolExecutor, toolName string) (ToolExecutor, bool) {
	for _, e := range executors {
		if e.CanExecute(toolName) {
			return e, true
		}
	}
	return nil, false
}
