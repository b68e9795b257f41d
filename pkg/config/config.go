// Package config provides unified configuration for sdvagent and its tool
// servers.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (MQTT_*, SFAPI_KEY, MODEL_NAME,
//     JUHE_API_KEY and the SDVAGENT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	MCP        MCPConfig        `yaml:"mcp"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	ToolServer ToolServerConfig `yaml:"toolserver"`
}

// BrokerConfig holds the MQTT broker connection.
type BrokerConfig struct {
	Host         string `yaml:"host"` // default: "broker.emqx.io"
	Port         int    `yaml:"port"` // default: 1883
	TLS          bool   `yaml:"tls"`
	ClientID     string `yaml:"client_id"` // random when empty
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password

	KeepAlive      time.Duration `yaml:"keep_alive"`      // default: 30s
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // default: 10s
	AutoReconnect  bool          `yaml:"auto_reconnect"`

	JWT BrokerJWTConfig `yaml:"jwt"`
}

// BrokerJWTConfig enables JWT broker authentication when a secret is set.
type BrokerJWTConfig struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	TTL        time.Duration `yaml:"ttl"` // default: 1h
}

// DiscoveryConfig holds tool server discovery settings.
type DiscoveryConfig struct {
	Filter      string        `yaml:"filter"`       // default: "sdv/#"
	TargetCount int           `yaml:"target_count"` // default: 2
	Timeout     time.Duration `yaml:"timeout"`      // default: 30s
	InitTimeout time.Duration `yaml:"init_timeout"` // default: 10s
}

// LLMConfig holds the chat completion provider settings.
type LLMConfig struct {
	Provider     string            `yaml:"provider"` // "siliconflow", default: "siliconflow"
	BaseURL      string            `yaml:"base_url"` // provider default when empty
	APIKey       string            `yaml:"api_key"`
	APIKeyFile   string            `yaml:"api_key_file"` // _file variant for api_key
	Model        string            `yaml:"model"`        // required for reports
	Temperature  float64           `yaml:"temperature"`  // default: 0.2
	MaxTokens    int               `yaml:"max_tokens"`   // default: 4000
	Timeout      time.Duration     `yaml:"timeout"`      // default: 180s
	ModelMapping map[string]string `yaml:"model_mapping"`
}

// AgentConfig holds the report workflow settings.
type AgentConfig struct {
	Language          string        `yaml:"language"`  // "zh" or "en", default: "zh"
	MaxTurns          int           `yaml:"max_turns"` // default: 10
	ParallelToolCalls bool          `yaml:"parallel_tool_calls"`
	AllowedTools      []string      `yaml:"allowed_tools"`
	StepTimeout       time.Duration `yaml:"step_timeout"`       // default: 180s
	MemoryTokenLimit  int           `yaml:"memory_token_limit"` // default: 64000
}

// PromptsConfig points at an optional prompt override directory.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// MCPConfig holds statically configured HTTP MCP servers, used next to
// the discovered ones.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth" json:"auth"`
}

// MCPAuthConfig holds OAuth client credentials for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret" json:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file"`
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// StorageConfig holds report storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`  // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// MetricsConfig holds the Prometheus endpoint. Metrics are served only
// when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9090"
	Path string `yaml:"path"` // default: "/metrics"
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Debug  string `yaml:"debug"`  // comma separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// ToolServerConfig holds the settings of the bundled tool servers.
type ToolServerConfig struct {
	Vehicle VehicleServerConfig `yaml:"vehicle"`
	Weather WeatherServerConfig `yaml:"weather"`
}

// VehicleServerConfig configures the vehicle data server.
type VehicleServerConfig struct {
	DataDir string `yaml:"data_dir"` // embedded sample data only when empty
}

// WeatherServerConfig configures the weather server.
type WeatherServerConfig struct {
	BaseURL       string        `yaml:"base_url"` // default: "http://v.juhe.cn"
	APIKey        string        `yaml:"api_key"`
	APIKeyFile    string        `yaml:"api_key_file"` // _file variant for api_key
	ProvincesFile string        `yaml:"provinces_file"`
	Timeout       time.Duration `yaml:"timeout"` // default: 30s
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			Host:           "broker.emqx.io",
			Port:           1883,
			KeepAlive:      30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			JWT: BrokerJWTConfig{
				TTL: time.Hour,
			},
		},
		Discovery: DiscoveryConfig{
			Filter:      "sdv/#",
			TargetCount: 2,
			Timeout:     30 * time.Second,
			InitTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "siliconflow",
			Temperature: 0.2,
			MaxTokens:   4000,
			Timeout:     180 * time.Second,
		},
		Agent: AgentConfig{
			Language:         "zh",
			MaxTurns:         10,
			StepTimeout:      180 * time.Second,
			MemoryTokenLimit: 64000,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		ToolServer: ToolServerConfig{
			Weather: WeatherServerConfig{
				BaseURL: "http://v.juhe.cn",
				Timeout: 30 * time.Second,
			},
		},
	}
}
