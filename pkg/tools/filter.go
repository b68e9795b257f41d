package tools

// FilterResult holds the outcome of filtering tool calls against the
// allow list.
type FilterResult struct {
	// Allowed contains tool calls that passed the filter.
	Allowed []ToolCall

	// Rejected contains error results for calls outside the allow list,
	// fed back to the model.
	Rejected []ToolResult
}

// FilterAllowedTools checks each tool call against the allowed list.
// An empty list allows everything.
func FilterAllowedTools(calls []ToolCall, allowedTools []string) FilterResult {
	if len(allowedTools) == 0 {
		return FilterResult{Allowed: calls}
	}

	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if allowed[call.Name] {
			result.Allowed = append(result.Allowed, call)
			continue
		}
		result.Rejected = append(result.Rejected, ToolResult{
			CallID:  call.ID,
			Output:  "tool " + call.Name + " is not in the allowed tools list",
			IsError: true,
		})
	}
	return result
}

// FilterDefinitions drops definitions outside the allow list so the model
// never sees them. An empty list keeps everything.
func FilterDefinitions(defs []Definition, allowedTools []string) []Definition {
	if len(allowedTools) == 0 {
		return defs
	}
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	var out []Definition
	for _, d := range defs {
		if allowed[d.Name] {
			out = append(out, d)
		}
	}
	return out
}
