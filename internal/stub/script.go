package stub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/resrun/internal/session"
)

// generate plays the scripted pipeline for one run: search, summary,
// validated, recommendations, then the done sentinel. Cancellation of the
// server context stops the script early without emitting done.
func (s *Server) generate(rn *run) {
	script := []session.Event{
		event(session.KindSearch, map[string]any{
			"hits": []map[string]string{
				{"title": "Overview: " + rn.query, "url": "https://example.org/overview"},
				{"title": "Deep dive: " + rn.query, "url": "https://example.org/deep-dive"},
			},
		}),
		event(session.KindSummary, map[string]any{
			"text": fmt.Sprintf("Preliminary findings on %q based on 2 sources.", rn.query),
		}),
		event(session.KindValidated, map[string]any{
			"checked": 2,
			"ok":      true,
		}),
		event(session.KindRecommendations, map[string]any{
			"items": []string{
				"Review the overview source",
				"Follow up on the deep dive",
			},
		}),
		{Kind: session.KindDone},
	}

	for _, ev := range script {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("script cancelled", "run_id", rn.id)
			s.finish(rn)
			return
		case <-time.After(s.stepDelay):
		}
		s.emit(rn, ev)
	}
	s.finish(rn)
}

func event(kind string, payload any) session.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal scripted payload: %v", err))
	}
	return session.Event{Kind: kind, Payload: data}
}
