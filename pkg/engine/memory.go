package engine

import (
	"sync"
	"unicode/utf8"

	"github.com/rhuss/sdvagent/pkg/provider"
)

// charsPerToken approximates the tokenizer; good enough for budgeting.
const charsPerToken = 4

// Memory is a chat history buffer. Get returns the system messages plus
// the newest other messages that fit into the token limit.
type Memory struct {
	mu       sync.Mutex
	limit    int
	messages []provider.ProviderMessage
}

// NewMemory returns an empty Memory. A limit of zero or less means
// DefaultMemoryTokenLimit.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryTokenLimit
	}
	return &Memory{limit: limit}
}

// Put appends messages.
func (m *Memory) Put(msgs ...provider.ProviderMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// All returns every stored message.
func (m *Memory) All() []provider.ProviderMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.ProviderMessage(nil), m.messages...)
}

// Reset empties the buffer.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Get returns the history to send to the model. System messages are always
// kept and come first. Other messages are dropped oldest first until the
// rest fits, but the newest message is always included. A tool result
// whose assistant call was dropped is dropped too.
func (m *Memory) Get() []provider.ProviderMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var system, rest []provider.ProviderMessage
	budget := m.limit
	for _, msg := range m.messages {
		if msg.Role == provider.RoleSystem {
			system = append(system, msg)
			budget -= EstimateTokens(msg)
		} else {
			rest = append(rest, msg)
		}
	}

	start := len(rest)
	for start > 0 {
		cost := EstimateTokens(rest[start-1])
		if cost > budget && start < len(rest) {
			break
		}
		budget -= cost
		start--
	}
	for start < len(rest)-1 && rest[start].Role == provider.RoleTool {
		start++
	}

	out := make([]provider.ProviderMessage, 0, len(system)+len(rest)-start)
	out = append(out, system...)
	return append(out, rest[start:]...)
}

// EstimateTokens approximates the tokens a message costs.
func EstimateTokens(msg provider.ProviderMessage) int {
	chars := utf8.RuneCountInString(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += utf8.RuneCountInString(tc.Function.Name) + utf8.RuneCountInString(tc.Function.Arguments)
	}
	// Per-message overhead for role and framing.
	return (chars+charsPerToken-1)/charsPerToken + 4
}
