package openaicompat

import (
	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a ProviderResponse
// using choices[0]. A response without choices or stopped by the content
// filter is a model error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.ProviderResponse, error) {
	pr := &provider.ProviderResponse{Model: resp.Model}
	if resp.Usage != nil {
		pr.Usage = resp.Usage.toAPI()
	}

	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, api.NewModelError("response blocked by the backend content filter")
	}
	pr.FinishReason = choice.FinishReason
	pr.Content = ExtractContentString(choice.Message.Content)
	if choice.Message.ReasoningContent != nil {
		pr.ReasoningContent = *choice.Message.ReasoningContent
	}

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		pr.ToolCalls = append(pr.ToolCalls, provider.ProviderToolCall{
			ID:   id,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return pr, nil
}

// ExtractContentString attempts to get a plain string from the message content.
// The content field in Chat Completions can be a string or nil.
func ExtractContentString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

func (u *ChatUsage) toAPI() api.Usage {
	return api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
