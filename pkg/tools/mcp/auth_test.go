package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// mockTokenServer serves an OAuth token endpoint. It fails every call after
// failAfter successful ones when failAfter > 0.
func mockTokenServer(t *testing.T, token string, expiresIn int, failAfter int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil || r.FormValue("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		if failAfter > 0 && int(n) > failAfter {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"expires_in":   expiresIn,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func newTestCredentials(url string, now *time.Time) *ClientCredentials {
	cc := NewClientCredentials(AuthConfig{TokenURL: url, ClientID: "sdvagent", ClientSecret: "s3cret", Scopes: []string{"maps"}})
	cc.now = func() time.Time { return *now }
	return cc
}

func TestClientCredentials(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int
		failAfter int
		advance   time.Duration
		wantCalls int32
		wantErr   bool
	}{
		{name: "cached", expiresIn: 3600, advance: time.Minute, wantCalls: 1},
		{name: "proactive refresh", expiresIn: 10, advance: 9 * time.Second, wantCalls: 2},
		{name: "refresh failure keeps valid token", expiresIn: 10, failAfter: 1, advance: 9 * time.Second, wantCalls: 2},
		{name: "expired and failing", expiresIn: 10, failAfter: 1, advance: 11 * time.Second, wantCalls: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := mockTokenServer(t, "tok", tt.expiresIn, tt.failAfter)
			now := time.Now()
			cc := newTestCredentials(srv.URL, &now)

			h, err := cc.Headers(context.Background())
			if err != nil {
				t.Fatalf("first Headers: %v", err)
			}
			if h["Authorization"] != "Bearer tok" {
				t.Errorf("Authorization = %q", h["Authorization"])
			}

			now = now.Add(tt.advance)
			h, err = cc.Headers(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("second Headers error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && h["Authorization"] != "Bearer tok" {
				t.Errorf("Authorization = %q", h["Authorization"])
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("token endpoint calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHeaderTransport(t *testing.T) {
	srv, _ := mockTokenServer(t, "bearer-token", 3600, 0)
	now := time.Now()

	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer backend.Close()

	client := &http.Client{Transport: &headerTransport{
		base: http.DefaultTransport,
		sources: []HeaderSource{
			StaticHeaders{"X-Api-Key": "k", "Authorization": "static"},
			newTestCredentials(srv.URL, &now),
		},
	}}
	resp, err := client.Get(backend.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got.Get("X-Api-Key") != "k" {
		t.Errorf("X-Api-Key = %q", got.Get("X-Api-Key"))
	}
	if got.Get("Authorization") != "Bearer bearer-token" {
		t.Errorf("Authorization = %q, want the OAuth token to override", got.Get("Authorization"))
	}
}

func TestClientCredentialsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer srv.Close()

	now := time.Now()
	if _, err := newTestCredentials(srv.URL, &now).Headers(context.Background()); err == nil {
		t.Error("expected error for missing access_token")
	}
}
