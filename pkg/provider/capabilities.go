package provider

import "github.com/rhuss/sdvagent/pkg/api"

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps ProviderCapabilities, req *ProviderRequest) *api.APIError {
	if req.Stream && !caps.Streaming {
		return api.NewInvalidRequestError("stream",
			"the configured provider does not support streaming responses")
	}
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewInvalidRequestError("tools",
			"the configured provider does not support tool calling")
	}
	if len(req.Messages) == 0 {
		return api.NewInvalidRequestError("messages", "at least one message is required")
	}
	return nil
}
