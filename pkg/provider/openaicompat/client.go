package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/observability"
	"github.com/rhuss/sdvagent/pkg/provider"
)

// DefaultTimeout bounds non-streaming requests when none is configured.
const DefaultTimeout = 120 * time.Second

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend. Provider adapters embed this Client and delegate their
// Complete/Stream/ListModels calls to it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

// NewClient creates a new Client for an OpenAI-compatible backend. Requests
// are recorded by the outbound HTTP metrics.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: observability.InstrumentClient(nil, timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	reqCopy := *req
	reqCopy.Stream = false

	httpReq, err := c.newChatRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}
	return TranslateResponse(&chatResp)
}

// Stream performs streaming inference against the Chat Completions endpoint.
// The returned channel is closed when the stream completes, errors, or the
// context is cancelled.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *Client) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	reqCopy := *req
	reqCopy.Stream = true

	httpReq, err := c.newChatRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: c.httpClient.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	ch := make(chan provider.ProviderEvent, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

func (c *Client) newChatRequest(ctx context.Context, req *provider.ProviderRequest) (*http.Request, error) {
	if c.ModelMapper != nil {
		req.Model = c.ModelMapper(req.Model)
	}

	body, err := json.Marshal(TranslateToChat(req))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)
	return httpReq, nil
}

func (c *Client) authorize(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// ListModels returns available models from the backend by querying
// the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	c.authorize(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
