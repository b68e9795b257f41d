package openaicompat

import "github.com/rhuss/sdvagent/pkg/provider"

// TranslateToChat converts a ProviderRequest into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateToChat(req *provider.ProviderRequest) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}

	// When streaming, enable usage reporting in the stream.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	for _, pm := range req.Messages {
		cm := ChatMessage{
			Role:       pm.Role,
			Content:    pm.Content,
			ToolCallID: pm.ToolCallID,
			Name:       pm.Name,
		}
		// An assistant message that only calls tools carries null content.
		if pm.Role == provider.RoleAssistant && pm.Content == "" && len(pm.ToolCalls) > 0 {
			cm.Content = nil
		}
		for _, tc := range pm.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, pt := range req.Tools {
		cr.Tools = append(cr.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        pt.Function.Name,
				Description: pt.Function.Description,
				Parameters:  pt.Function.Parameters,
			},
		})
	}

	if len(cr.Tools) > 0 && req.ToolChoice != "" {
		cr.ToolChoice = req.ToolChoice
	}
	return cr
}
