// Package realtime broadcasts job lifecycle events to interested subscribers.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	EventTypeJob = "job"

	defaultBufferSize = 64
)

// Event is one broadcast notification
type Event struct {
	Type    string     `json:"type"`
	UserID  string     `json:"user_id,omitempty"`
	Payload JobPayload `json:"payload"`
}

// JobPayload describes a job transition
type JobPayload struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Publisher accepts events without blocking the caller
type Publisher interface {
	Publish(e Event)
}

// Hub fans events out to in-process subscribers. Each subscriber owns a
// bounded buffer; when it is full the event is dropped for that subscriber.
type Hub struct {
	logger     *slog.Logger
	bufferSize int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub whose subscribers buffer up to bufferSize events
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		logger:     logger.With("component", "realtime_hub"),
		bufferSize: bufferSize,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Publish delivers e to every matching subscriber and never blocks
func (h *Hub) Publish(e Event) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
			h.logger.Debug("Dropping event for slow subscriber",
				slog.String("job_id", e.Payload.JobID),
				slog.String("subscriber", sub.UserID),
			)
		}
	}
}

// Subscribe registers a subscriber. An empty userID receives every event;
// otherwise only events for that user and events without a user.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		UserID: userID,
		ch:     make(chan Event, h.bufferSize),
		hub:    h,
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of open subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Published returns how many events were published
func (h *Hub) Published() int64 { return h.published.Load() }

// Dropped returns how many deliveries were dropped because a buffer was full
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Subscription is a registered event receiver
type Subscription struct {
	UserID string

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Events returns the receive channel; it is closed by Close
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

func (s *Subscription) matches(e Event) bool {
	return s.UserID == "" || e.UserID == "" || e.UserID == s.UserID
}
