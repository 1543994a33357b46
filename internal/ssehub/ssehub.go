// Package ssehub fans a session's domain events out to zero or more
// Server-Sent Events subscribers, adapted from the broadcast manager's
// goroutine-fan-out-with-recover shape: there, one message reaches N
// agent runtimes; here, one event reaches N subscriber channels for a
// single session.
package ssehub

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// keepaliveInterval is how long a subscriber's output loop waits in
// silence before emitting an SSE comment to keep the connection alive.
const keepaliveInterval = 30 * time.Second

// subscriberBuffer bounds a subscriber's channel; it is large rather than
// unbounded in practice; a subscriber that can't keep up is dropped
// instead of blocking the publishing session's processor.
const subscriberBuffer = 256

// Event is one named, JSON-serializable payload broadcast to a session's
// subscribers.
type Event struct {
	Type string
	Data any
}

// Subscriber is a single registered listener for one session's events.
type Subscriber struct {
	id uuid.UUID
	ch chan Event
}

// Events returns the subscriber's event channel. The channel is closed
// when the subscriber is unregistered.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub fans events out to per-session subscriber sets. The zero value is
// not usable; construct with New.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[uuid.UUID]*Subscriber // sessionID -> subscriberID -> Subscriber
}

// New constructs an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger.With("component", "ssehub"),
		subscribers: make(map[uuid.UUID]map[uuid.UUID]*Subscriber),
	}
}

// Register adds a new subscriber for sessionID and returns it along with
// an unregister function.
func (h *Hub) Register(sessionID uuid.UUID) (*Subscriber, func()) {
	sub := &Subscriber{id: uuid.New(), ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subscribers[sessionID]
	if !ok {
		set = make(map[uuid.UUID]*Subscriber)
		h.subscribers[sessionID] = set
	}
	set[sub.id] = sub
	h.mu.Unlock()

	return sub, func() { h.Unregister(sessionID, sub.id) }
}

// Unregister removes a subscriber and closes its channel. Safe to call
// more than once.
func (h *Hub) Unregister(sessionID, subscriberID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	if sub, ok := set[subscriberID]; ok {
		delete(set, subscriberID)
		close(sub.ch)
	}
	if len(set) == 0 {
		delete(h.subscribers, sessionID)
	}
}

// Broadcast enqueues event onto every subscriber registered for
// sessionID. A subscriber whose channel is full (or whose send otherwise
// panics, e.g. send-on-closed-channel from a racing Unregister) is
// dropped rather than allowed to stall the publisher.
func (h *Hub) Broadcast(sessionID uuid.UUID, event Event) {
	h.mu.RLock()
	set := h.subscribers[sessionID]
	subs := make([]*Subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.deliver(sessionID, sub, event)
	}
}

func (h *Hub) deliver(sessionID uuid.UUID, sub *Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("sse subscriber delivery panicked, dropping", "session_id", sessionID, "recover", r)
			h.Unregister(sessionID, sub.id)
		}
	}()
	select {
	case sub.ch <- event:
	default:
		h.logger.Warn("sse subscriber channel full, dropping subscriber", "session_id", sessionID)
		h.Unregister(sessionID, sub.id)
	}
}

// WriteStream drains sub onto w in SSE wire format
// ("event: <type>\ndata: <json>\n\n"), emitting a keepalive comment line
// after keepaliveInterval of silence, until either the channel closes or
// writing to w fails. flush, if non-nil, is called after every write
// (e.g. http.Flusher.Flush).
func WriteStream(w io.Writer, sub *Subscriber, flush func()) error {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, event); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			ticker.Reset(keepaliveInterval)
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
		}
	}
}

func writeEvent(w io.Writer, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("ssehub: marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	return nil
}
