package siliconflow

import "time"

// Defaults for the hosted SiliconFlow API.
const (
	DefaultBaseURL = "https://api.siliconflow.cn"
	DefaultTimeout = 180 * time.Second
)

// Config holds configuration for the SiliconFlow provider adapter.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey authenticates requests (SFAPI_KEY).
	APIKey string

	// Timeout for individual non-streaming HTTP requests. Defaults to 180s.
	Timeout time.Duration

	// ModelMapping maps requested model names to SiliconFlow model
	// identifiers, e.g. {"qwen": "Qwen/Qwen2.5-72B-Instruct"}. Models not
	// in the map are passed through unchanged.
	ModelMapping map[string]string
}

// DefaultConfig returns a Config for the hosted API with the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Timeout: DefaultTimeout,
	}
}
