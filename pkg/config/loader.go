package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, SDVAGENT_CONFIG env, ./config.yaml, /etc/sdvagent/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. SDVAGENT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/sdvagent/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("SDVAGENT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/sdvagent/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The
// unprefixed names are the ones the tool servers and the report driver
// have always read.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Broker.Host, "MQTT_BROKER", "SDVAGENT_BROKER_HOST")
	setInt(&cfg.Broker.Port, "MQTT_PORT", "SDVAGENT_BROKER_PORT")
	setString(&cfg.Broker.Username, "MQTT_USERNAME", "SDVAGENT_BROKER_USERNAME")
	setString(&cfg.Broker.Password, "MQTT_PASSWORD", "SDVAGENT_BROKER_PASSWORD")
	setString(&cfg.Broker.JWT.Secret, "SDVAGENT_BROKER_JWT_SECRET")

	setString(&cfg.Discovery.Filter, "SDVAGENT_DISCOVERY_FILTER")
	setInt(&cfg.Discovery.TargetCount, "SDVAGENT_DISCOVERY_TARGET")

	setString(&cfg.LLM.Provider, "SDVAGENT_LLM_PROVIDER")
	setString(&cfg.LLM.BaseURL, "SDVAGENT_LLM_BASE_URL")
	setString(&cfg.LLM.APIKey, "SFAPI_KEY", "SDVAGENT_LLM_API_KEY")
	setString(&cfg.LLM.Model, "MODEL_NAME", "SDVAGENT_LLM_MODEL")

	setString(&cfg.Agent.Language, "SDVAGENT_LANGUAGE")
	setString(&cfg.Prompts.Dir, "SDVAGENT_PROMPTS_DIR")

	setString(&cfg.Storage.Type, "SDVAGENT_STORAGE")
	setString(&cfg.Storage.Postgres.DSN, "SDVAGENT_POSTGRES_DSN")

	setString(&cfg.Metrics.Addr, "SDVAGENT_METRICS_ADDR")

	setString(&cfg.ToolServer.Vehicle.DataDir, "SDVAGENT_VEHICLE_DATA_DIR")
	setString(&cfg.ToolServer.Weather.APIKey, "JUHE_API_KEY", "SDVAGENT_WEATHER_API_KEY")
	setString(&cfg.ToolServer.Weather.ProvincesFile, "SDVAGENT_WEATHER_PROVINCES_FILE")

	// SDVAGENT_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("SDVAGENT_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			slog.Warn("ignoring SDVAGENT_MCP_SERVERS", "error", err)
		} else if len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// setString sets dst from the last non-empty variable of names, so
// prefixed names win over the unprefixed ones.
func setString(dst *string, names ...string) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, names ...string) {
	for _, n := range names {
		v := os.Getenv(n)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring non-numeric environment variable", "name", n, "value", v)
			continue
		}
		*dst = i
	}
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// fileRef pairs a _file field with the value it fills.
type fileRef struct {
	path  string
	file  string
	value *string
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []fileRef{
		{"broker.password_file", cfg.Broker.PasswordFile, &cfg.Broker.Password},
		{"broker.jwt.secret_file", cfg.Broker.JWT.SecretFile, &cfg.Broker.JWT.Secret},
		{"llm.api_key_file", cfg.LLM.APIKeyFile, &cfg.LLM.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"toolserver.weather.api_key_file", cfg.ToolServer.Weather.APIKeyFile, &cfg.ToolServer.Weather.APIKey},
	}
	for i := range cfg.MCP.Servers {
		auth := &cfg.MCP.Servers[i].Auth
		refs = append(refs,
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_id_file", i), auth.ClientIDFile, &auth.ClientID},
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_secret_file", i), auth.ClientSecretFile, &auth.ClientSecret},
		)
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.path, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
