package session

// StageState is the display status of one expected stage.
type StageState string

const (
	StageCompleted  StageState = "Completed"
	StageInProgress StageState = "InProgress"
	StageNotStarted StageState = "Not Started"
)

// Stage pairs a well-known event kind with its derived display state.
type Stage struct {
	Kind  string
	Label string
	State StageState
}

// stageVocabulary is the fixed, ordered set of milestone kinds used for
// progress display. Runs may emit other kinds; those simply never show here.
var stageVocabulary = []struct {
	kind  string
	label string
}{
	{KindSearch, "Search"},
	{KindSummary, "Summarize"},
	{KindValidated, "Validate"},
	{KindRecommendations, "Recommend"},
}

// StageProgress derives the per-stage display state from the log: a stage is
// Completed if its kind appears anywhere in the log; while the session is
// running, exactly the first not-yet-seen stage in vocabulary order is
// InProgress; all other unseen stages are Not Started.
//
// This is a pure projection recomputed from scratch on every call, never
// incrementally mutated state.
func StageProgress(log []Event, status Status) []Stage {
	seen := make(map[string]bool, len(log))
	for _, ev := range log {
		seen[ev.Kind] = true
	}

	stages := make([]Stage, 0, len(stageVocabulary))
	inProgressAssigned := false
	for _, v := range stageVocabulary {
		state := StageNotStarted
		switch {
		case seen[v.kind]:
			state = StageCompleted
		case status == StatusRunning && !inProgressAssigned:
			state = StageInProgress
			inProgressAssigned = true
		}
		stages = append(stages, Stage{Kind: v.kind, Label: v.label, State: state})
	}
	return stages
}
