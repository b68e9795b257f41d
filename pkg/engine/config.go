package engine

import (
	"time"

	"github.com/rhuss/sdvagent/pkg/tools"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultMaxAgenticTurns  = 10
	DefaultStepTimeout      = 180 * time.Second
	DefaultMemoryTokenLimit = 64000
)

// Config holds configuration for the agent and the report workflow.
type Config struct {
	// Model is sent with every provider request.
	Model string

	// Temperature and MaxTokens are passed to the provider when set.
	Temperature *float64
	MaxTokens   int

	// MaxAgenticTurns is the maximum number of model turns in one agent
	// run. Zero or negative means DefaultMaxAgenticTurns.
	MaxAgenticTurns int

	// ParallelToolCalls executes the tool calls of one turn concurrently.
	ParallelToolCalls bool

	// AllowedTools restricts the tools offered to and callable by the
	// model. Empty allows all.
	AllowedTools []string

	// Executors run tool calls. Executors that implement
	// tools.DefinitionSource also advertise their tools to the model.
	Executors []tools.ToolExecutor

	// Servers names the tool servers behind the executors; recorded in
	// reports.
	Servers []string

	// StepTimeout bounds each workflow step. Zero means DefaultStepTimeout.
	StepTimeout time.Duration

	// MemoryTokenLimit bounds the chat history sent to the model. Zero
	// means DefaultMemoryTokenLimit.
	MemoryTokenLimit int
}

func (c Config) maxTurns() int {
	if c.MaxAgenticTurns <= 0 {
		return DefaultMaxAgenticTurns
	}
	return c.MaxAgenticTurns
}

func (c Config) stepTimeout() time.Duration {
	if c.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return c.StepTimeout
}

func (c Config) memoryTokenLimit() int {
	if c.MemoryTokenLimit <= 0 {
		return DefaultMemoryTokenLimit
	}
	return c.MemoryTokenLimit
}

func (c Config) maxTokens() *int {
	if c.MaxTokens <= 0 {
		return nil
	}
	n := c.MaxTokens
	return &n
}
