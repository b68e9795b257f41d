package provider

import "context"

// Provider abstracts an LLM inference backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "siliconflow").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() ProviderCapabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Stream performs streaming inference. The returned channel receives
	// ProviderEvent values and is closed by the provider when the stream
	// completes or errors.
	Stream(ctx context.Context, req *ProviderRequest) (<-chan ProviderEvent, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
