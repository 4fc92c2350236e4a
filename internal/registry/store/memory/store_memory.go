// Package memory is the in-memory registry store used in tests and when no
// database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"gestionale/internal/registry/models"
	"gestionale/pkg/platform/sentinel"
)

// InMemoryStore keeps records keyed by code. Records are cloned on the way in
// and out so callers never share state with the store.
type InMemoryStore[T models.Record[T]] struct {
	mu      sync.RWMutex
	records map[string]T
}

func New[T models.Record[T]]() *InMemoryStore[T] {
	return &InMemoryStore[T]{records: make(map[string]T)}
}

// NewCustomers is the customer registry store.
func NewCustomers() *InMemoryStore[*models.Customer] { return New[*models.Customer]() }

// NewSuppliers is the supplier registry store.
func NewSuppliers() *InMemoryStore[*models.Supplier] { return New[*models.Supplier]() }

func (s *InMemoryStore[T]) Create(_ context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key()]; ok {
		return sentinel.ErrConflict
	}
	s.records[rec.Key()] = rec.Clone()
	return nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, code string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[code]
	if !ok {
		var zero T
		return zero, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore[T]) Update(_ context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key()]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[rec.Key()] = rec.Clone()
	return nil
}

func (s *InMemoryStore[T]) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[code]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, code)
	return nil
}

func (s *InMemoryStore[T]) List(_ context.Context, q models.ListQuery) (models.ListPage[T], error) {
	q = q.Normalize()
	s.mu.RLock()
	matched := make([]T, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Matches(q.Search) {
			matched = append(matched, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Less(matched[j]) {
			return true
		}
		if matched[j].Less(matched[i]) {
			return false
		}
		return matched[i].Key() < matched[j].Key()
	})

	page := models.ListPage[T]{Total: len(matched)}
	if q.Offset >= len(matched) {
		page.Items = []T{}
		return page, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	page.Items = matched[q.Offset:end]
	return page, nil
}
