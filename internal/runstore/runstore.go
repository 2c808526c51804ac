// Package runstore keeps the durable local registry of research runs. The
// registry survives restarts and is best-effort by contract: reads degrade to
// an empty history and writes are swallowed, never surfaced to callers.
package runstore

import (
	"encoding/json"
	"log/slog"
	"sort"
	"time"
)

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// RunRecord is one run summary in the registry. FinishedAt is set iff the
// status is terminal.
type RunRecord struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	EventCount int        `json:"events"`
}

// Patch holds the fields Update may change. Nil fields are left untouched.
type Patch struct {
	Status     *Status
	FinishedAt *time.Time
	EventCount *int
}

// Storage is the persistence capability the registry writes through: a single
// keyed text entry that may be absent, corrupted, or unavailable.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// registryKey is the single entry holding the serialized run history.
const registryKey = "ai_research_runs"

// Store is the run registry. All failures of the backing storage are absorbed:
// List returns an empty history, Add and Update become no-ops. Absorbed
// failures are reported to the logger only.
type Store struct {
	storage Storage
	logger  *slog.Logger
}

// New creates a Store over the given storage capability.
func New(storage Storage) *Store {
	return &Store{storage: storage, logger: slog.Default()}
}

// List returns all recorded runs sorted by StartedAt descending (most recent
// first), regardless of insertion order. It never fails: unreadable or
// malformed history reads as empty.
func (s *Store) List() []RunRecord {
	records := s.read()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records
}

// Add prepends a record to the persisted history. Write failures are
// swallowed; the store is best-effort, not transactional.
func (s *Store) Add(rec RunRecord) {
	records := s.read()
	records = append([]RunRecord{rec}, records...)
	s.write(records)
}

// Update merges the patch into the record with the given id and persists the
// whole collection. Unknown ids are a silent no-op. Unrelated records and
// unpatched fields are carried through unchanged.
func (s *Store) Update(id string, patch Patch) {
	records := s.read()
	found := false
	for i := range records {
		if records[i].ID != id {
			continue
		}
		found = true
		if patch.Status != nil {
			records[i].Status = *patch.Status
		}
		if patch.FinishedAt != nil {
			records[i].FinishedAt = patch.FinishedAt
		}
		if patch.EventCount != nil {
			records[i].EventCount = *patch.EventCount
		}
	}
	if !found {
		return
	}
	s.write(records)
}

func (s *Store) read() []RunRecord {
	raw, ok, err := s.storage.Get(registryKey)
	if err != nil {
		s.logger.Debug("run registry read failed", "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var records []RunRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Debug("run registry payload malformed", "error", err)
		return nil
	}
	return records
}

func (s *Store) write(records []RunRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Debug("run registry marshal failed", "error", err)
		return
	}
	if err := s.storage.Set(registryKey, string(data)); err != nil {
		s.logger.Debug("run registry write failed", "error", err)
	}
}
