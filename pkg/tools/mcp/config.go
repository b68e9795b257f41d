package mcp

// ServerConfig describes a statically configured HTTP MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and tool routing.
	Name string `json:"name"`

	// Transport is "sse" or "streamable-http" (default).
	Transport string `json:"transport"`

	// URL is the MCP server endpoint.
	URL string `json:"url"`

	// Headers are sent with every request, typically API keys.
	Headers map[string]string `json:"headers,omitempty"`

	// Auth optionally obtains bearer tokens.
	Auth AuthConfig `json:"auth,omitempty"`
}

// AuthConfig selects how bearer tokens are obtained. Type is empty (none)
// or "oauth_client_credentials".
type AuthConfig struct {
	Type         string   `json:"type,omitempty"`
	TokenURL     string   `json:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}
