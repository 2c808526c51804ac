package session

import "testing"

func stageByKind(t *testing.T, stages []Stage, kind string) Stage {
	t.Helper()
	for _, st := range stages {
		if st.Kind == kind {
			return st
		}
	}
	t.Fatalf("stage %q not in projection", kind)
	return Stage{}
}

func TestStageProgress(t *testing.T) {
	tests := []struct {
		name   string
		log    []Event
		status Status
		want   map[string]StageState
	}{
		{
			name:   "empty log while running",
			log:    nil,
			status: StatusRunning,
			want: map[string]StageState{
				KindSearch:          StageInProgress,
				KindSummary:         StageNotStarted,
				KindValidated:       StageNotStarted,
				KindRecommendations: StageNotStarted,
			},
		},
		{
			name:   "search seen moves in-progress forward",
			log:    []Event{ev(KindSearch, "{}")},
			status: StatusRunning,
			want: map[string]StageState{
				KindSearch:          StageCompleted,
				KindSummary:         StageInProgress,
				KindValidated:       StageNotStarted,
				KindRecommendations: StageNotStarted,
			},
		},
		{
			// Out-of-vocabulary-order arrival: summary completed, search
			// still unseen, so search is the one in progress.
			name:   "summary before search",
			log:    []Event{ev(KindSummary, `{"text":"S"}`), ev(KindDone, "")},
			status: StatusRunning,
			want: map[string]StageState{
				KindSearch:          StageInProgress,
				KindSummary:         StageCompleted,
				KindValidated:       StageNotStarted,
				KindRecommendations: StageNotStarted,
			},
		},
		{
			name:   "not running means nothing in progress",
			log:    []Event{ev(KindSearch, "{}")},
			status: StatusDone,
			want: map[string]StageState{
				KindSearch:          StageCompleted,
				KindSummary:         StageNotStarted,
				KindValidated:       StageNotStarted,
				KindRecommendations: StageNotStarted,
			},
		},
		{
			name: "all stages complete",
			log: []Event{
				ev(KindSearch, "{}"), ev(KindSummary, "{}"),
				ev(KindValidated, "{}"), ev(KindRecommendations, "{}"),
			},
			status: StatusRunning,
			want: map[string]StageState{
				KindSearch:          StageCompleted,
				KindSummary:         StageCompleted,
				KindValidated:       StageCompleted,
				KindRecommendations: StageCompleted,
			},
		},
		{
			name:   "unknown kinds are ignored",
			log:    []Event{ev("telemetry", "{}"), ev("telemetry", "{}")},
			status: StatusRunning,
			want: map[string]StageState{
				KindSearch:          StageInProgress,
				KindSummary:         StageNotStarted,
				KindValidated:       StageNotStarted,
				KindRecommendations: StageNotStarted,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StageProgress(tt.log, tt.status)
			if len(got) != 4 {
				t.Fatalf("projection has %d stages, want 4", len(got))
			}
			for kind, want := range tt.want {
				if st := stageByKind(t, got, kind); st.State != want {
					t.Errorf("%s = %s, want %s", kind, st.State, want)
				}
			}
		})
	}
}

func TestStageProgressIsPure(t *testing.T) {
	log := []Event{ev(KindSearch, "{}"), ev(KindSummary, "{}")}

	first := StageProgress(log, StatusRunning)
	second := StageProgress(log, StatusRunning)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("projection not deterministic: %+v vs %+v", first[i], second[i])
		}
	}
}
