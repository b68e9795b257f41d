package config

import (
	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/broker/paho"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/discovery"
	mcptools "github.com/rhuss/sdvagent/pkg/tools/mcp"
)

// Endpoint returns the broker endpoint. An empty clientID leaves the
// choice to the caller.
func (b BrokerConfig) Endpoint(clientID string) broker.Endpoint {
	if b.ClientID != "" {
		clientID = b.ClientID
	}
	return broker.Endpoint{
		Host:     b.Host,
		Port:     b.Port,
		ClientID: clientID,
		Username: b.Username,
		Password: b.Password,
		TLS:      b.TLS,
	}
}

// Dialer returns a Paho dialer for the broker settings.
func (b BrokerConfig) Dialer() *paho.Dialer {
	opts := paho.Options{
		KeepAlive:      b.KeepAlive,
		ConnectTimeout: b.ConnectTimeout,
		AutoReconnect:  b.AutoReconnect,
	}
	if b.JWT.Secret != "" {
		opts.JWT = &paho.JWTConfig{
			Secret:   b.JWT.Secret,
			Issuer:   b.JWT.Issuer,
			Audience: b.JWT.Audience,
			TTL:      b.JWT.TTL,
		}
	}
	return paho.NewDialer(opts)
}

// DiscoveryOptions returns the discovery run options.
func (c *Config) DiscoveryOptions(version string) discovery.Options {
	return discovery.Options{
		Endpoint:      c.Broker.Endpoint(""),
		Filter:        c.Discovery.Filter,
		TargetCount:   c.Discovery.TargetCount,
		Timeout:       c.Discovery.Timeout,
		InitTimeout:   c.Discovery.InitTimeout,
		ClientVersion: version,
	}
}

// MCPServers converts the static MCP server list.
func (m MCPConfig) MCPServers() []mcptools.ServerConfig {
	out := make([]mcptools.ServerConfig, 0, len(m.Servers))
	for _, s := range m.Servers {
		out = append(out, mcptools.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
			Auth: mcptools.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		})
	}
	return out
}

// DebugOptions returns the logger settings.
func (l LoggingConfig) DebugOptions() debug.Options {
	return debug.Options{
		Categories: l.Debug,
		Level:      l.Level,
		Format:     l.Format,
	}
}
