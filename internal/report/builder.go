// Package report projects a run's event log into a structured,
// section-oriented document used for preview and export. The projection is a
// pure function: identical (topic, log) inputs always yield an identical
// document, with no clock, randomness, or store state involved.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/resrun/internal/session"
)

// Section is one heading/body pair of the document.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Document is the derived report. It is never persisted; rebuild it from the
// log whenever it is needed.
type Document struct {
	Title    string
	Sections []Section
}

type searchPayload struct {
	Hits []searchHit `json:"hits"`
}

type searchHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type summaryPayload struct {
	Text string `json:"text"`
}

type recommendationsPayload struct {
	Items []string `json:"items"`
}

// Build assembles the report document for a topic from an event log. Each
// extraction rule applies independently; a missing or unparsable payload
// simply omits that section. When none of the extractable kinds appear at
// all, the document falls back to one section per event in arrival order.
func Build(topic string, log []session.Event) Document {
	doc := Document{Title: "Research Report: " + topic}
	if len(log) == 0 {
		return doc
	}

	if body, ok := summaryBody(log); ok {
		doc.Sections = append(doc.Sections, Section{Heading: "Executive Summary", Body: body})
	}
	if body, ok := sourcesBody(log); ok {
		doc.Sections = append(doc.Sections, Section{Heading: "Sources", Body: body})
	}
	if body, ok := recommendationsBody(log); ok {
		doc.Sections = append(doc.Sections, Section{Heading: "Recommendations", Body: body})
	}

	if len(doc.Sections) == 0 && !hasExtractableKind(log) {
		for _, ev := range log {
			doc.Sections = append(doc.Sections, Section{
				Heading: ev.Kind,
				Body:    renderPayload(ev.Payload),
			})
		}
	}

	return doc
}

func firstOfKind(log []session.Event, kind string) (session.Event, bool) {
	for _, ev := range log {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return session.Event{}, false
}

func hasExtractableKind(log []session.Event) bool {
	for _, ev := range log {
		switch ev.Kind {
		case session.KindSummary, session.KindSearch, session.KindRecommendations:
			return true
		}
	}
	return false
}

// summaryBody extracts the text of the first summary event.
func summaryBody(log []session.Event) (string, bool) {
	ev, ok := firstOfKind(log, session.KindSummary)
	if !ok || ev.Payload == nil {
		return "", false
	}
	var p summaryPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Text == "" {
		return "", false
	}
	return p.Text, true
}

// sourcesBody renders one bulleted line per hit of the first search event.
// Hits missing either a title or a URL are skipped.
func sourcesBody(log []session.Event) (string, bool) {
	ev, ok := firstOfKind(log, session.KindSearch)
	if !ok || ev.Payload == nil {
		return "", false
	}
	var p searchPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return "", false
	}

	var lines []string
	for _, hit := range p.Hits {
		if hit.Title == "" || hit.URL == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s — %s", hit.Title, hit.URL))
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// recommendationsBody renders one bulleted line per item of the first
// recommendations event, in list order.
func recommendationsBody(log []session.Event) (string, bool) {
	ev, ok := firstOfKind(log, session.KindRecommendations)
	if !ok || ev.Payload == nil {
		return "", false
	}
	var p recommendationsPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || len(p.Items) == 0 {
		return "", false
	}

	lines := make([]string, len(p.Items))
	for i, item := range p.Items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n"), true
}

// renderPayload produces the canonical textual form of an opaque payload:
// compacted JSON, or empty when absent.
func renderPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}
	return buf.String()
}
