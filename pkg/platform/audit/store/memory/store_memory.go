package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	audit "gestionale/pkg/platform/audit"
)

// InMemoryStore keeps entries in append order. It has no transactions, so an
// entry appended inside a unit of work that later fails is kept.
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []audit.Entry
	notReady atomic.Bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SetReady toggles whether the store behaves as provisioned. An unprovisioned
// store rejects appends with audit.ErrStorageNotReady.
func (s *InMemoryStore) SetReady(ready bool) {
	s.notReady.Store(!ready)
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	if s.notReady.Load() {
		return audit.ErrStorageNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q audit.Query) (audit.Page, error) {
	if s.notReady.Load() {
		return audit.Page{}, audit.ErrStorageNotReady
	}
	q = q.Normalize()

	s.mu.RLock()
	matched := make([]audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if q.Matches(e) {
			matched = append(matched, cloneEntry(e))
		}
	}
	s.mu.RUnlock()

	// Stable sort keeps append order for equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		if q.Order == audit.OrderAsc {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})

	page := audit.Page{Total: len(matched)}
	if q.Offset >= len(matched) {
		page.Entries = []audit.Entry{}
		return page, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Entries = matched[q.Offset:end]
	return page, nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry. Test helper only.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// cloneEntry copies the details so callers cannot mutate stored snapshots.
func cloneEntry(e audit.Entry) audit.Entry {
	if e.Details != nil {
		d := audit.Details{
			Old: append([]byte(nil), e.Details.Old...),
			New: append([]byte(nil), e.Details.New...),
		}
		e.Details = &d
	}
	return e
}
