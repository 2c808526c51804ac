package report

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/resrun/internal/session"
)

func ev(kind, payload string) session.Event {
	e := session.Event{Kind: kind}
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	return e
}

func sectionByHeading(t *testing.T, doc Document, heading string) Section {
	t.Helper()
	for _, sec := range doc.Sections {
		if sec.Heading == heading {
			return sec
		}
	}
	t.Fatalf("section %q not in document %+v", heading, doc)
	return Section{}
}

func TestBuildFullReport(t *testing.T) {
	log := []session.Event{
		ev(session.KindSearch, `{"hits":[
			{"title":"Rayleigh scattering","url":"https://example.org/rayleigh"},
			{"title":"No URL here"},
			{"url":"https://example.org/orphan"},
			{"title":"Atmospheric optics","url":"https://example.org/optics"}
		]}`),
		ev(session.KindSummary, `{"text":"Short wavelengths scatter more."}`),
		ev(session.KindValidated, `{"ok":true}`),
		ev(session.KindRecommendations, `{"items":["Read the survey","Check the data"]}`),
		ev(session.KindDone, ""),
	}

	doc := Build("why is the sky blue", log)

	if doc.Title != "Research Report: why is the sky blue" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Sections) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(doc.Sections), doc.Sections)
	}

	if got := sectionByHeading(t, doc, "Executive Summary").Body; got != "Short wavelengths scatter more." {
		t.Errorf("summary body = %q", got)
	}

	sources := sectionByHeading(t, doc, "Sources").Body
	wantSources := "• Rayleigh scattering — https://example.org/rayleigh\n" +
		"• Atmospheric optics — https://example.org/optics"
	if sources != wantSources {
		t.Errorf("sources body = %q, want %q (hits without both fields skipped)", sources, wantSources)
	}

	recs := sectionByHeading(t, doc, "Recommendations").Body
	if recs != "• Read the survey\n• Check the data" {
		t.Errorf("recommendations body = %q", recs)
	}
}

func TestBuildUsesFirstEventOfEachKind(t *testing.T) {
	log := []session.Event{
		ev(session.KindSummary, `{"text":"first"}`),
		ev(session.KindSummary, `{"text":"second"}`),
	}

	doc := Build("t", log)
	if got := sectionByHeading(t, doc, "Executive Summary").Body; got != "first" {
		t.Errorf("summary body = %q, want the first summary event", got)
	}
}

func TestBuildEmptyLog(t *testing.T) {
	doc := Build("quiet topic", nil)
	if doc.Title != "Research Report: quiet topic" {
		t.Errorf("Title = %q", doc.Title)
	}
	if !doc.IsEmpty() {
		t.Errorf("sections = %+v, want none", doc.Sections)
	}
}

func TestBuildPartialLog(t *testing.T) {
	// Only a summary arrived before the stream ended.
	doc := Build("t", []session.Event{ev(session.KindSummary, `{"text":"only this"}`)})

	if len(doc.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(doc.Sections))
	}
	if doc.Sections[0].Heading != "Executive Summary" {
		t.Errorf("heading = %q", doc.Sections[0].Heading)
	}
}

func TestBuildUnparsablePayloadsOmitSections(t *testing.T) {
	log := []session.Event{
		ev(session.KindSearch, `"not an object"`),
		ev(session.KindSummary, `{"text":"kept"}`),
		ev(session.KindRecommendations, `{"items":[]}`),
	}

	doc := Build("t", log)
	if len(doc.Sections) != 1 || doc.Sections[0].Heading != "Executive Summary" {
		t.Errorf("sections = %+v, want only Executive Summary", doc.Sections)
	}
}

func TestBuildFallbackForUnknownKinds(t *testing.T) {
	log := []session.Event{
		ev("telemetry", `{ "cpu": 4 }`),
		ev("progress", ""),
		ev(session.KindDone, ""),
	}

	doc := Build("t", log)
	want := []Section{
		{Heading: "telemetry", Body: `{"cpu":4}`},
		{Heading: "progress", Body: ""},
		{Heading: session.KindDone, Body: ""},
	}
	if !reflect.DeepEqual(doc.Sections, want) {
		t.Errorf("fallback sections = %+v, want %+v", doc.Sections, want)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	log := []session.Event{
		ev(session.KindSearch, `{"hits":[{"title":"A","url":"u"}]}`),
		ev(session.KindSummary, `{"text":"S"}`),
	}

	first := Build("t", log)
	second := Build("t", log)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Build not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestMarkdownRendering(t *testing.T) {
	doc := Document{
		Title: "Research Report: t",
		Sections: []Section{
			{Heading: "Executive Summary", Body: "S"},
			{Heading: "Sources", Body: "• A — u"},
		},
	}

	md := doc.Markdown()
	if !strings.HasPrefix(md, "# Research Report: t\n") {
		t.Errorf("markdown missing title line: %q", md)
	}
	for _, want := range []string{"## Executive Summary\n\nS\n", "## Sources\n\n• A — u\n"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
