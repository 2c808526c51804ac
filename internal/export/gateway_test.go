package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/resrun/internal/auth"
	"github.com/kalambet/resrun/internal/report"
)

var ctx = context.Background()

var sampleDoc = report.Document{
	Title: "Research Report: t",
	Sections: []report.Section{
		{Heading: "Executive Summary", Body: "S"},
		{Heading: "Sources", Body: "• A — u"},
	},
}

func TestExportPDF(t *testing.T) {
	var gotAuth string
	var gotBody pdfRequest
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method != http.MethodPost || r.URL.Path != "/api/export/pdf" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake")
	}))
	defer srv.Close()

	g := New(srv.URL, auth.Static{Value: "tok-7"}, "https://api.example.com")
	pdf, err := g.ExportPDF(ctx, sampleDoc)
	if err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}

	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("response bytes = %q, want PDF payload", pdf)
	}
	if gotAuth != "Bearer tok-7" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Title != sampleDoc.Title {
		t.Errorf("request title = %q", gotBody.Title)
	}
	if len(gotBody.Sections) != 2 || gotBody.Sections[0].Heading != "Executive Summary" {
		t.Errorf("request sections = %+v, want the document's sections verbatim", gotBody.Sections)
	}
	if requests != 1 {
		t.Errorf("made %d requests, want exactly 1", requests)
	}
}

func TestExportPDFAnonymousSendsNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("Authorization header sent for anonymous export: %q", r.Header.Get("Authorization"))
		}
		io.WriteString(w, "%PDF-1.4")
	}))
	defer srv.Close()

	g := New(srv.URL, auth.Anonymous{}, "")
	if _, err := g.ExportPDF(ctx, sampleDoc); err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
}

func TestExportPDFServerErrorNoRetry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "renderer unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := New(srv.URL, auth.Anonymous{}, "")
	if _, err := g.ExportPDF(ctx, sampleDoc); err == nil {
		t.Fatal("expected an error from a 502 response")
	} else if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not surface the status", err)
	}
	if requests != 1 {
		t.Errorf("made %d requests, want 1 (no automatic retry)", requests)
	}
}

func TestExportPDFTokenFailureShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the token cannot be acquired")
	}))
	defer srv.Close()

	g := New(srv.URL, auth.Static{}, "") // empty static token errors
	if _, err := g.ExportPDF(ctx, sampleDoc); err == nil {
		t.Fatal("expected token acquisition failure")
	}
}

func TestWritePortable(t *testing.T) {
	g := New("http://unused", auth.Anonymous{}, "")
	var buf bytes.Buffer
	if err := g.WritePortable(sampleDoc, &buf); err != nil {
		t.Fatalf("WritePortable: %v", err)
	}
	if got := buf.String(); got != sampleDoc.Markdown() {
		t.Errorf("portable output = %q", got)
	}
}
