package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/resrun/internal/config"
)

var ctx = context.Background()

func TestStaticToken(t *testing.T) {
	p := Static{Value: "tok-1"}
	got, err := p.Token(ctx, "aud")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("Token = %q, want tok-1", got)
	}
}

func TestStaticTokenEmpty(t *testing.T) {
	p := Static{}
	if _, err := p.Token(ctx, "aud"); err == nil {
		t.Error("expected error for empty static token")
	}
}

func TestAnonymousToken(t *testing.T) {
	got, err := Anonymous{}.Token(ctx, "aud")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("Token = %q, want empty", got)
	}
}

func TestClientCredentials(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding token request: %v", err)
		}
		if req["grant_type"] != "client_credentials" {
			t.Errorf("grant_type = %q", req["grant_type"])
		}
		if req["audience"] != "https://api.example.com" {
			t.Errorf("audience = %q", req["audience"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "issued-token",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	p := &ClientCredentials{
		TokenURL:     srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	}

	got, err := p.Token(ctx, "https://api.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "issued-token" {
		t.Errorf("Token = %q, want issued-token", got)
	}

	// Second acquisition is served from cache.
	if _, err := p.Token(ctx, "https://api.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}

func TestClientCredentialsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"access_denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	p := &ClientCredentials{TokenURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := p.Token(ctx, "aud"); err == nil {
		t.Error("expected error from denied token request")
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AuthConfig
		want string
	}{
		{"token wins", config.AuthConfig{Token: "t", TokenURL: "u"}, "auth.Static"},
		{"token url", config.AuthConfig{TokenURL: "u"}, "*auth.ClientCredentials"},
		{"anonymous", config.AuthConfig{}, "auth.Anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromConfig(tt.cfg)
			got := typeName(p)
			if got != tt.want {
				t.Errorf("FromConfig = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case Static:
		return "auth.Static"
	case Anonymous:
		return "auth.Anonymous"
	case *ClientCredentials:
		return "*auth.ClientCredentials"
	default:
		return "unknown"
	}
}
