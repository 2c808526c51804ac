// Package export turns report documents into artifacts: portable text written
// locally, and PDFs rendered by the backend export service.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/resrun/internal/auth"
	"github.com/kalambet/resrun/internal/report"
)

// Gateway talks to the backend's export endpoint. The zero value is not
// usable; construct it with New.
type Gateway struct {
	baseURL  string
	client   *http.Client
	tokens   auth.TokenProvider
	audience string
}

// New builds a Gateway for the given API base URL. Token acquisition is
// delegated entirely to the provider; the gateway never caches or inspects
// credentials itself.
func New(baseURL string, tokens auth.TokenProvider, audience string) *Gateway {
	return &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
		tokens:   tokens,
		audience: audience,
	}
}

type pdfRequest struct {
	Title    string           `json:"title"`
	Sections []report.Section `json:"sections"`
}

// WritePortable writes the document's portable text rendering to w. It needs
// no network and no credentials.
func (g *Gateway) WritePortable(doc report.Document, w io.Writer) error {
	if _, err := io.WriteString(w, doc.Markdown()); err != nil {
		return fmt.Errorf("write portable report: %w", err)
	}
	return nil
}

// ExportPDF submits the document to the export service and returns the
// rendered PDF bytes. The document's sections are sent exactly as built, with
// no reordering or re-derivation. A failed export returns an error and leaves
// nothing behind; callers retry by calling again.
func (g *Gateway) ExportPDF(ctx context.Context, doc report.Document) ([]byte, error) {
	token, err := g.tokens.Token(ctx, g.audience)
	if err != nil {
		return nil, fmt.Errorf("acquire export token: %w", err)
	}

	body, err := json.Marshal(pdfRequest{Title: doc.Title, Sections: doc.Sections})
	if err != nil {
		return nil, fmt.Errorf("encode export request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/export/pdf", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("export pdf: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf response: %w", err)
	}
	return pdf, nil
}
