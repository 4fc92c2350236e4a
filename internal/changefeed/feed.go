// Package changefeed is the persistence layer's notification mechanism.
//
// Entity types are opted in explicitly with Track; observers are registered
// once at process start with Register. Services run each mutation through
// Apply, which notifies observers only after the mutation succeeded, passing
// the acting identity the caller supplied.
package changefeed

import (
	"context"
	"errors"
	"sync"

	"gestionale/internal/identity"
)

// Kind is the type of mutation.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Change describes one successful mutation of a tracked entity.
//
// EntityID must be captured before a delete runs. Before and After are
// optional snapshots of the record. Actor is nil when no authenticated
// identity is available.
type Change struct {
	EntityType string
	EntityID   string
	Kind       Kind
	Actor      *identity.Actor
	Before     any
	After      any
}

// Observer is notified after each mutation of a tracked entity type.
// A returned error is propagated to the caller of the mutation.
type Observer interface {
	OnChange(ctx context.Context, change Change) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change) error

func (f ObserverFunc) OnChange(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Feed holds the tracked entity types and the registered observers.
type Feed struct {
	mu        sync.RWMutex
	tracked   map[string]struct{}
	observers []Observer
}

// New creates an empty Feed. Nothing is tracked until Track is called.
func New() *Feed {
	return &Feed{tracked: make(map[string]struct{})}
}

// Track opts entity types into notification.
func (f *Feed) Track(entityTypes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range entityTypes {
		f.tracked[t] = struct{}{}
	}
}

// Tracks reports whether entityType was opted in.
func (f *Feed) Tracks(entityType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.tracked[entityType]
	return ok
}

// Register adds an observer. Observers are called in registration order.
func (f *Feed) Register(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, o)
}

// Apply runs mutate and, only if it succeeds, notifies observers of change.
// The mutation error is returned unchanged and suppresses notification.
func (f *Feed) Apply(ctx context.Context, change Change, mutate func(ctx context.Context) error) error {
	if err := mutate(ctx); err != nil {
		return err
	}
	return f.Notify(ctx, change)
}

// Notify delivers change to every observer when its entity type is tracked.
// Every observer is called; their errors are joined.
func (f *Feed) Notify(ctx context.Context, change Change) error {
	f.mu.RLock()
	_, tracked := f.tracked[change.EntityType]
	observers := f.observers
	f.mu.RUnlock()

	if !tracked {
		return nil
	}
	var errs []error
	for _, o := range observers {
		if err := o.OnChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
