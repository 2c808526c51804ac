// Package backend is the HTTP and websocket client for the research API. It
// implements session.Backend so a live session can be driven against any
// deployment, including the local stub.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/resrun/internal/auth"
	"github.com/kalambet/resrun/internal/session"
)

// Client talks to one research backend deployment.
type Client struct {
	baseURL  string
	client   *http.Client
	tokens   auth.TokenProvider
	audience string
	userID   string
}

// New builds a client for the given API base URL. userID identifies this
// installation on the stream handshake; it carries no secret.
func New(baseURL string, tokens auth.TokenProvider, audience, userID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		tokens:   tokens,
		audience: audience,
		userID:   userID,
	}
}

// RemoteRun is a run as reported by the backend's own registry.
type RemoteRun struct {
	ID          string     `json:"id"`
	Query       string     `json:"query,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StartRun submits a query and returns the server-assigned run identifier.
func (c *Client) StartRun(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("encode research request: %w", err)
	}

	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/research", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.RunID == "" {
		return "", fmt.Errorf("backend accepted the query but returned no run_id")
	}
	return out.RunID, nil
}

// Subscribe opens the run's live event stream.
func (c *Client) Subscribe(ctx context.Context, runID, query string) (*session.Subscription, error) {
	token, err := c.tokens.Token(ctx, c.audience)
	if err != nil {
		return nil, fmt.Errorf("acquire stream token: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return session.Subscribe(ctx, c.StreamURL(runID, query), header)
}

// StreamURL builds the websocket endpoint for a run's event stream.
func (c *Client) StreamURL(runID, query string) string {
	ws := c.baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}

	q := url.Values{}
	q.Set("query", query)
	if c.userID != "" {
		q.Set("user_id", c.userID)
	}
	return fmt.Sprintf("%s/api/runs/%s/stream?%s", ws, url.PathEscape(runID), q.Encode())
}

// ListRuns fetches the backend's view of recent runs. The response arrives
// wrapped in a {runs: [...]} envelope.
func (c *Client) ListRuns(ctx context.Context) ([]RemoteRun, error) {
	var out struct {
		Runs []RemoteRun `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/runs", nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// RunEvents fetches the stored event log of a past run from its
// {events: [...]} envelope. The frames come back in the same shape the live
// stream delivers them.
func (c *Client) RunEvents(ctx context.Context, runID string) ([]session.Event, error) {
	var out struct {
		Events []session.Event `json:"events"`
	}
	path := "/api/runs/" + url.PathEscape(runID) + "/events"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	token, err := c.tokens.Token(ctx, c.audience)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
