package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/resrun/internal/runstore"
)

// Status is the session lifecycle state. Transitions are monotonic:
// idle → running → {done, error}; done and error are terminal.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Backend is the subset of the API client a session needs: accept a query
// and return a run identifier, then open the run's event stream.
type Backend interface {
	StartRun(ctx context.Context, query string) (runID string, err error)
	Subscribe(ctx context.Context, runID, query string) (*Subscription, error)
}

// Recorder mirrors session progress into the durable run registry.
// Implemented by runstore.Store.
type Recorder interface {
	Add(rec runstore.RunRecord)
	Update(id string, patch runstore.Patch)
}

// Session owns one run's event log and connection lifecycle. A session is
// single-use: Start may be called once; a new user action means a new
// session. The log only grows and is never reordered.
type Session struct {
	backend  Backend
	recorder Recorder
	onEvent  func(Event)

	mu     sync.Mutex
	status Status
	runID  string
	query  string
	log    []Event
	sub    *Subscription

	done chan struct{}
}

// New creates an idle session. recorder may be nil when no registry
// mirroring is wanted (e.g. rebuilding a past run).
func New(backend Backend, recorder Recorder) *Session {
	return &Session{
		backend:  backend,
		recorder: recorder,
		status:   StatusIdle,
		done:     make(chan struct{}),
	}
}

// OnEvent registers a callback invoked for every appended event, in arrival
// order. Must be set before Start.
func (s *Session) OnEvent(fn func(Event)) {
	s.onEvent = fn
}

// Start submits the query and opens the event subscription. The session is
// running (and its run recorded in the registry) the instant the backend
// accepts the query; the reducer loop then runs until the stream ends. A
// failed submission moves the session straight to error without ever visiting
// running, while a failed subscription on an accepted run is a transport
// fault: running to error, with the terminal status mirrored.
func (s *Session) Start(ctx context.Context, query string) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return fmt.Errorf("session already started (status %s)", s.status)
	}
	s.mu.Unlock()

	runID, err := s.backend.StartRun(ctx, query)
	if err != nil {
		s.fail()
		return fmt.Errorf("starting run: %w", err)
	}

	s.mu.Lock()
	s.status = StatusRunning
	s.runID = runID
	s.query = query
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Add(runstore.RunRecord{
			ID:        runID,
			Query:     query,
			Status:    runstore.StatusRunning,
			StartedAt: time.Now().UTC(),
		})
	}

	sub, err := s.backend.Subscribe(ctx, runID, query)
	if err != nil {
		s.mu.Lock()
		s.status = StatusError
		s.mu.Unlock()
		if s.recorder != nil {
			s.mirrorTerminal(runstore.StatusError)
		}
		close(s.done)
		return fmt.Errorf("subscribing to run %s: %w", runID, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	go s.consume(sub)
	return nil
}

// Wait blocks until the session reaches a terminal status or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the live subscription. Closing is advisory cleanup, not a
// status transition: the reducer observing the closure decides the final
// status (a close without a prior fault resolves to done).
func (s *Session) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RunID returns the server-assigned run identifier, empty until accepted.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Log returns a copy of the event log in arrival order.
func (s *Session) Log() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return out
}

// Snapshot returns the status and a copy of the log in one consistent read.
func (s *Session) Snapshot() (Status, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return s.status, out
}

// consume is the reducer loop: it appends every inbound event to the log,
// mirrors the count into the registry, and drives the terminal transition.
func (s *Session) consume(sub *Subscription) {
	for ev := range sub.Frames() {
		s.mu.Lock()
		s.log = append(s.log, ev)
		count := len(s.log)
		terminal := ev.Kind == KindDone && s.status == StatusRunning
		if terminal {
			s.status = StatusDone
		}
		s.mu.Unlock()

		if s.recorder != nil {
			s.recorder.Update(s.runID, runstore.Patch{EventCount: &count})
			if terminal {
				s.mirrorTerminal(runstore.StatusDone)
			}
		}

		if s.onEvent != nil {
			s.onEvent(ev)
		}
	}

	// Stream over. A closure while still running is a soft success unless a
	// transport fault was recorded.
	s.mu.Lock()
	stillRunning := s.status == StatusRunning
	var final Status
	if stillRunning {
		if sub.Err() != nil {
			final = StatusError
		} else {
			final = StatusDone
		}
		s.status = final
	}
	s.mu.Unlock()

	if stillRunning && s.recorder != nil {
		if final == StatusError {
			s.mirrorTerminal(runstore.StatusError)
		} else {
			s.mirrorTerminal(runstore.StatusDone)
		}
	}

	close(s.done)
}

func (s *Session) mirrorTerminal(status runstore.Status) {
	now := time.Now().UTC()
	s.recorder.Update(s.runID, runstore.Patch{Status: &status, FinishedAt: &now})
}

// fail marks a session that never reached running. No registry record
// exists yet, so there is nothing to mirror.
func (s *Session) fail() {
	s.mu.Lock()
	s.status = StatusError
	s.mu.Unlock()
	close(s.done)
}
