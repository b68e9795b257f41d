package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/sdvagent/pkg/broker"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Broker.Host == "" {
		errs = append(errs, fmt.Errorf("broker.host is required"))
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port must be in 1..65535, got %d", c.Broker.Port))
	}

	if err := broker.ValidateFilter(c.Discovery.Filter); err != nil {
		errs = append(errs, fmt.Errorf("discovery.filter: %w", err))
	}
	if c.Discovery.TargetCount < 1 {
		errs = append(errs, fmt.Errorf("discovery.target_count must be >= 1, got %d", c.Discovery.TargetCount))
	}
	if c.Discovery.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("discovery.timeout must be > 0, got %v", c.Discovery.Timeout))
	}

	// Other OpenAI-compatible backends are reached through llm.base_url.
	if c.LLM.Provider != "siliconflow" {
		errs = append(errs, fmt.Errorf("llm.provider must be \"siliconflow\", got %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in 0..2, got %v", c.LLM.Temperature))
	}

	switch c.Agent.Language {
	case "zh", "en":
		// valid
	default:
		errs = append(errs, fmt.Errorf("agent.language must be \"zh\" or \"en\", got %q", c.Agent.Language))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch s.Transport {
		case "", "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with \"/\", got %q", c.Metrics.Path))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ValidateForReports checks the settings only report generation needs.
func (c *Config) ValidateForReports() error {
	var errs []error
	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required (or set MODEL_NAME)"))
	}
	if c.LLM.BaseURL == "" && c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required for the SiliconFlow API (or set SFAPI_KEY)"))
	}
	return errors.Join(errs...)
}
