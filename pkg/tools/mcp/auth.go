package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HeaderSource supplies per-request headers for HTTP MCP servers.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// StaticHeaders is a HeaderSource with fixed values.
type StaticHeaders map[string]string

// Headers returns h.
func (h StaticHeaders) Headers(context.Context) (map[string]string, error) {
	return h, nil
}

// ClientCredentials obtains bearer tokens with the OAuth 2.0
// client_credentials grant. A token is reused until 80% of its lifetime
// has passed; if a refresh fails while the token is still valid, the old
// token is used.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiry    time.Time
	refreshAt time.Time
}

// NewClientCredentials returns a token source for the given auth config.
func NewClientCredentials(cfg AuthConfig) *ClientCredentials {
	return &ClientCredentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}
}

// Headers returns an Authorization header with a bearer token.
func (a *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.now != nil {
		now = a.now()
	}
	if a.token != "" && now.Before(a.refreshAt) {
		return bearer(a.token), nil
	}

	token, lifetime, err := a.fetch(ctx)
	if err != nil {
		if a.token != "" && now.Before(a.expiry) {
			return bearer(a.token), nil
		}
		return nil, fmt.Errorf("acquiring OAuth token: %w", err)
	}

	a.token = token
	a.expiry = now.Add(lifetime)
	a.refreshAt = now.Add(lifetime * 8 / 10)
	return bearer(token), nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (a *ClientCredentials) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.ClientID},
		"client_secret": {a.ClientSecret},
	}
	if len(a.Scopes) > 0 {
		form.Set("scope", strings.Join(a.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, errors.New("token response missing access_token")
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

// headerTransport applies headers from each source, in order, to every
// request.
type headerTransport struct {
	base    http.RoundTripper
	sources []HeaderSource
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for _, src := range t.sources {
		h, err := src.Headers(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
