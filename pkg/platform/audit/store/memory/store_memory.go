package memory

import (
	"context"
	"sync"

	audit "assent/pkg/platform/audit"
)

// Store is a bounded, thread-safe in-memory audit store. When full, the
// oldest events are dropped to make room for new ones. Suited to tests and
// to processes that only need a recent window of activity.
type Store struct {
	mu       sync.Mutex
	events   []audit.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	// Stats
	dropped int64
}

const defaultCapacity = 10000

// New creates a store bounded at the given capacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		events:   make([]audit.Event, capacity),
		capacity: capacity,
	}
}

// Append adds an event, dropping the oldest if necessary.
func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count >= s.capacity {
		// Drop oldest
		s.tail = (s.tail + 1) % s.capacity
		s.count--
		s.dropped++
	}

	s.events[s.head] = event
	s.head = (s.head + 1) % s.capacity
	s.count++
	return nil
}

// ListBySubject returns retained events for one subject, most recent first.
func (s *Store) ListBySubject(_ context.Context, subjectID string) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audit.Event
	for i := s.count - 1; i >= 0; i-- {
		ev := s.events[(s.tail+i)%s.capacity]
		if ev.SubjectID == subjectID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListRecent returns up to limit retained events, most recent first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.count
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]audit.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.events[(s.tail+s.count-1-i)%s.capacity])
	}
	return out, nil
}

// Len returns the current number of retained events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Dropped returns the total number of events evicted to make room.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Clear removes all retained events. The drop counter is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]audit.Event, s.capacity)
	s.head, s.tail, s.count = 0, 0, 0
}

func (s *Store) Close() error { return nil }
