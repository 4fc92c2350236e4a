package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps failure timestamps per key for a single process.
type InMemoryStore struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

func New() *InMemoryStore {
	return &InMemoryStore{failures: make(map[string][]time.Time)}
}

func (s *InMemoryStore) Record(_ context.Context, key string, at time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = trim(append(s.failures[key], at), at.Add(-window))
	return nil
}

func (s *InMemoryStore) Window(_ context.Context, key string, since time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := trim(s.failures[key], since)
	if len(kept) == 0 {
		delete(s.failures, key)
		return 0, time.Time{}, nil
	}
	s.failures[key] = kept
	return len(kept), kept[0], nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
	return nil
}

// trim drops timestamps before since. Timestamps are appended in order.
func trim(ts []time.Time, since time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(since) {
		i++
	}
	return ts[i:]
}
