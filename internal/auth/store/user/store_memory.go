// Package user stores accounts.
package user

import (
	"context"
	"sort"
	"strings"
	"sync"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	"gestionale/pkg/platform/sentinel"
)

// InMemoryUserStore keeps accounts in a map. Usernames are unique without
// regard to case.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]identity.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]identity.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return sentinel.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) Update(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.users[u.ID] = *u
	return nil
}

// List returns every account ordered by username.
func (s *InMemoryUserStore) List(_ context.Context) ([]*identity.User, error) {
	s.mu.RLock()
	out := make([]*identity.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, &u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}
