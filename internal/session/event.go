// Package session tracks exactly one research run: it submits the query,
// subscribes to the run's live event stream, and reduces the ordered stream
// into a growing event log with a monotonic status.
package session

import "encoding/json"

// Event is one frame from the run's stream: a kind plus an optional opaque
// payload. The same kind may repeat or never appear; the vocabulary is
// open-ended and unknown kinds are carried through untouched.
type Event struct {
	Kind    string          `json:"event"`
	Payload json.RawMessage `json:"data,omitempty"`
}

// Well-known event kinds. KindDone is the sentinel that ends the logical run.
const (
	KindSearch          = "search"
	KindSummary         = "summary"
	KindValidated       = "validated"
	KindRecommendations = "recommendations"
	KindDone            = "done"
)
