// Package stub is a self-contained research backend for local development.
// It accepts queries, plays back a scripted pipeline as a live event stream,
// and renders a minimal PDF for export, so the client can be exercised end to
// end without any real deployment.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/resrun/internal/report"
	"github.com/kalambet/resrun/internal/session"
)

// Server holds all stub state in memory. One Server handles any number of
// concurrent runs; each accepted query gets its own generator goroutine.
type Server struct {
	logger    *slog.Logger
	stepDelay time.Duration
	upgrader  websocket.Upgrader
	group     *errgroup.Group
	ctx       context.Context

	mu    sync.Mutex
	runs  map[string]*run
	order []string
}

type run struct {
	id         string
	query      string
	status     string
	startedAt  time.Time
	finishedAt *time.Time
	events     []session.Event
	finished   bool
	cond       *sync.Cond
}

// New builds a stub server. stepDelay is the pause between scripted events;
// pass a small value in tests.
func New(ctx context.Context, logger *slog.Logger, stepDelay time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if stepDelay <= 0 {
		stepDelay = 300 * time.Millisecond
	}
	group, ctx := errgroup.WithContext(ctx)
	return &Server{
		logger:    logger,
		stepDelay: stepDelay,
		group:     group,
		ctx:       ctx,
		runs:      make(map[string]*run),
	}
}

// Handler returns the stub's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/research", s.handleResearch)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}/events", s.handleRunEvents)
	r.Get("/api/runs/{id}/stream", s.handleStream)
	r.Post("/api/export/pdf", s.handleExportPDF)
	return r
}

// Wait blocks until every generator goroutine has finished.
func (s *Server) Wait() error {
	return s.group.Wait()
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Query == "" {
		httpError(w, http.StatusBadRequest, "query is required")
		return
	}

	id := uuid.NewString()
	rn := &run{
		id:        id,
		query:     req.Query,
		status:    "running",
		startedAt: time.Now().UTC(),
	}
	rn.cond = sync.NewCond(&s.mu)

	s.mu.Lock()
	s.runs[id] = rn
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.group.Go(func() error {
		s.generate(rn)
		return nil
	})

	s.logger.Info("run accepted", "run_id", id, "query", req.Query)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"run_id": id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	type runOut struct {
		ID          string     `json:"id"`
		Query       string     `json:"query"`
		Status      string     `json:"status"`
		CreatedAt   time.Time  `json:"created_at"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
	}

	s.mu.Lock()
	out := make([]runOut, 0, len(s.order))
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		rn := s.runs[s.order[i]]
		out = append(out, runOut{
			ID:          rn.id,
			Query:       rn.query,
			Status:      rn.status,
			CreatedAt:   rn.startedAt,
			CompletedAt: rn.finishedAt,
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": out})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rn, ok := s.runs[id]
	var events []session.Event
	if ok {
		events = make([]session.Event, len(rn.events))
		copy(events, rn.events)
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "unknown run %s", id)
		return
	}

	if events == nil {
		events = []session.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"events": events})
}

// handleStream upgrades to a websocket and delivers the run's events as they
// are produced, starting from the beginning so late subscribers see the full
// log. After the final event the connection is closed with a normal close
// frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rn, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "unknown run %s", id)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "run_id", id, "error", err)
		return
	}
	defer conn.Close()

	next := 0
	for {
		s.mu.Lock()
		for next >= len(rn.events) && !rn.finished {
			rn.cond.Wait()
		}
		pending := make([]session.Event, len(rn.events)-next)
		copy(pending, rn.events[next:])
		next = len(rn.events)
		finished := rn.finished
		s.mu.Unlock()

		for _, ev := range pending {
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("stream write failed", "run_id", id, "error", err)
				return
			}
		}
		if finished {
			break
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteMessage(websocket.CloseMessage, msg)
	// Let the peer drain before the deferred close tears the socket down.
	time.Sleep(50 * time.Millisecond)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string           `json:"title"`
		Sections []report.Section `json:"sections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Title == "" {
		httpError(w, http.StatusBadRequest, "title is required")
		return
	}

	pdf := renderPDF(req.Title, req.Sections)
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(pdf)
}

// emit appends one event to the run and wakes all stream subscribers.
func (s *Server) emit(rn *run, ev session.Event) {
	s.mu.Lock()
	rn.events = append(rn.events, ev)
	rn.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Server) finish(rn *run) {
	now := time.Now().UTC()
	s.mu.Lock()
	rn.status = "done"
	rn.finishedAt = &now
	rn.finished = true
	rn.cond.Broadcast()
	s.mu.Unlock()
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
