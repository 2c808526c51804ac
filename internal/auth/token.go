// Package auth provides bearer-credential acquisition for calls to the
// research backend and the export capability. Credential acquisition is an
// opaque capability: produce a valid token for a given audience,
// asynchronously, possibly failing.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// TokenProvider yields a bearer credential scoped to an audience.
// An empty token with a nil error means the caller should send the request
// unauthenticated (anonymous/stub deployments).
type TokenProvider interface {
	Token(ctx context.Context, audience string) (string, error)
}

// Static returns a fixed token regardless of audience.
type Static struct {
	Value string
}

func (s Static) Token(ctx context.Context, audience string) (string, error) {
	if s.Value == "" {
		return "", fmt.Errorf("no bearer token configured")
	}
	return s.Value, nil
}

// Anonymous yields an empty credential; requests go out without an
// Authorization header. Useful against the local stub backend.
type Anonymous struct{}

func (Anonymous) Token(ctx context.Context, audience string) (string, error) {
	return "", nil
}

// ClientCredentials acquires tokens from an OAuth2-style token endpoint using
// the client_credentials grant, caching each token until shortly before its
// expiry. Safe for concurrent use.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// expirySlack is subtracted from the reported lifetime so a token is never
// handed out moments before it lapses.
const expirySlack = 30 * time.Second

func (c *ClientCredentials) Token(ctx context.Context, audience string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	token, expiresIn, err := c.fetch(ctx, audience)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expires = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
	return token, nil
}

func (c *ClientCredentials) fetch(ctx context.Context, audience string) (string, int, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"audience":      audience,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshalling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty access_token")
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = 300
	}
	return out.AccessToken, out.ExpiresIn, nil
}
