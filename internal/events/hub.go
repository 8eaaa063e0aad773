package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCallStatus   = "call-status"
	TypeJobQueued    = "job-queued"
	TypeJobStarted   = "job-started"
	TypeJobProgress  = "job-progress"
	TypeJobCompleted = "job-completed"
	TypeJobFailed    = "job-failed"
)

// Event is a refresh trigger for observers. Payload fields are hints only;
// observers re-fetch authoritative state.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	CallID    int64     `json:"call_id,omitempty"`
	JobID     int64     `json:"job_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Progress  int       `json:"progress,omitempty"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

// Subscriber receives events on a buffered channel. A subscriber that falls
// behind loses events rather than stalling the publisher.
type Subscriber struct {
	ID   string
	send chan Event
	hub  *Hub
	once sync.Once
}

func (s *Subscriber) C() <-chan Event { return s.send }

// Close unregisters the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans events out to every connected subscriber.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscriber]struct{}
	bufSize int
	dropped atomic.Uint64

	Now func() time.Time
}

func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{subs: map[*Subscriber]struct{}{}, bufSize: bufSize, Now: time.Now}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ID: uuid.NewString(), send: make(chan Event, h.bufSize), hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}
