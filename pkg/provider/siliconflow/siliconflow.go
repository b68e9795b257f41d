package siliconflow

import (
	"context"
	"fmt"

	"github.com/rhuss/sdvagent/pkg/provider"
	"github.com/rhuss/sdvagent/pkg/provider/openaicompat"
)

// Provider implements provider.Provider for SiliconFlow.
type Provider struct {
	cfg    Config
	client *openaicompat.Client
	caps   provider.ProviderCapabilities
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. An API key is required unless BaseURL points
// somewhere other than the hosted API.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, fmt.Errorf("siliconflow: APIKey is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		client.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}

	return &Provider{
		cfg:    cfg,
		client: client,
		caps: provider.ProviderCapabilities{
			Streaming:   true,
			ToolCalling: true,
			Reasoning:   true,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "siliconflow"
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.ProviderCapabilities {
	return p.caps
}

// Complete performs non-streaming inference.
func (p *Provider) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return p.client.Complete(ctx, req)
}

// Stream performs streaming inference.
func (p *Provider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	return p.client.Stream(ctx, req)
}

// ListModels returns the models the account can use.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

// Close releases provider resources.
func (p *Provider) Close() error {
	return p.client.Close()
}
