package presence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"callcenter-platform/internal/phone"
)

var ErrInvalidPhone = errors.New("presence: phone is required")

// Store holds heartbeat-derived presence entries. Entries expire on their own;
// there is no delete. Missing means offline.
type Store interface {
	Heartbeat(ctx context.Context, hb Heartbeat) (Entry, error)
	ListOnline(ctx context.Context) ([]Entry, error)
}

// entryFrom builds the entry a heartbeat overwrites the previous one with.
func entryFrom(hb Heartbeat, now time.Time) (Entry, error) {
	p := phone.Normalize(hb.Phone)
	if p == "" {
		return Entry{}, ErrInvalidPhone
	}
	e := Entry{
		Phone:     p,
		Name:      hb.Name,
		LastSeen:  now.UTC(),
		CallState: ParseCallState(hb.CallState),
	}
	if e.CallState == StateOnCall {
		if n := phone.Normalize(hb.CallNumber); n != "" {
			e.CallNumber = &n
		}
		if hb.CallStartTime != nil {
			st := hb.CallStartTime.UTC()
			e.CallStartTime = &st
		}
	}
	return e, nil
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Phone < es[j].Phone })
}

// MemoryStore keeps entries in a map and drops expired ones when read.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry

	Now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, entries: map[string]Entry{}, Now: time.Now}
}

func (s *MemoryStore) Heartbeat(ctx context.Context, hb Heartbeat) (Entry, error) {
	e, err := entryFrom(hb, s.Now())
	if err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	s.entries[e.Phone] = e
	s.mu.Unlock()
	return e, nil
}

func (s *MemoryStore) ListOnline(ctx context.Context) ([]Entry, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for k, e := range s.entries {
		if now.Sub(e.LastSeen) >= s.ttl {
			delete(s.entries, k)
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}
