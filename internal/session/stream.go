package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Subscription is a live event stream for one run. Frames arrive on the
// channel in transport order until the connection closes; the subscription is
// finite and cannot be restarted, a new run means a new subscription.
type Subscription struct {
	conn   *websocket.Conn
	frames chan Event
	logger *slog.Logger

	closed atomic.Bool

	mu  sync.Mutex
	err error
}

// Subscribe dials the streaming endpoint and starts the read loop. The
// header carries the bearer credential when one is configured.
func Subscribe(ctx context.Context, wsURL string, header http.Header) (*Subscription, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	sub := &Subscription{
		conn:   conn,
		frames: make(chan Event, 16),
		logger: slog.Default(),
	}
	go sub.readLoop()
	return sub, nil
}

// Frames returns the inbound event channel. It is closed when the transport
// closes, cleanly or not; check Err afterwards to tell the two apart.
func (s *Subscription) Frames() <-chan Event {
	return s.frames
}

// Close shuts the underlying connection. It is advisory cleanup: the read
// loop observing the closure is what ends the stream.
func (s *Subscription) Close() error {
	s.closed.Store(true)
	return s.conn.Close()
}

// Err reports the transport fault that ended the stream, or nil after a
// clean close. Valid only once Frames is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) readLoop() {
	defer close(s.frames)
	defer s.conn.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// A close initiated by our own Close call is not a fault.
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed frames are dropped; only structurally valid frames
			// participate in the state machine.
			s.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		if ev.Kind == "" {
			s.logger.Debug("dropping frame without event kind")
			continue
		}

		s.frames <- ev
	}
}
