// Package service implements the customer and supplier registries.
//
// Every operation asks the permission evaluator first, with the actor the
// caller passes in. Mutations run in one store transaction and go through the
// change feed, so the audit trail sees them only after the write succeeded.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gestionale/internal/authz"
	"gestionale/internal/changefeed"
	"gestionale/internal/identity"
	"gestionale/internal/registry/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

// Store persists one registry. Get, Update and Delete return
// sentinel.ErrNotFound for unknown codes; Create returns sentinel.ErrConflict
// for a duplicate code.
type Store[T any] interface {
	Create(ctx context.Context, rec T) error
	Get(ctx context.Context, code string) (T, error)
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context, q models.ListQuery) (models.ListPage[T], error)
}

// TxRunner scopes a unit of work: a SQL transaction or an in-memory lock.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service manages one registry of T.
type Service[T models.Record[T]] struct {
	entityType string
	grants     []authz.Grant
	store      Store[T]
	tx         TxRunner
	feed       *changefeed.Feed
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// CustomerGrants opens customer reads and creates to the Commercial role.
var CustomerGrants = []authz.Grant{authz.GrantCommercial(authz.OpRead, authz.OpCreate)}

// NewCustomers creates the customer registry service.
func NewCustomers(store Store[*models.Customer], tx TxRunner, feed *changefeed.Feed, opts ...Option) *Service[*models.Customer] {
	return newService(models.EntityTypeCustomer, CustomerGrants, store, tx, feed, opts...)
}

// NewSuppliers creates the supplier registry service. Suppliers grant the
// Commercial role nothing.
func NewSuppliers(store Store[*models.Supplier], tx TxRunner, feed *changefeed.Feed, opts ...Option) *Service[*models.Supplier] {
	return newService(models.EntityTypeSupplier, nil, store, tx, feed, opts...)
}

func newService[T models.Record[T]](entityType string, grants []authz.Grant, store Store[T], tx TxRunner, feed *changefeed.Feed, opts ...Option) *Service[T] {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service[T]{
		entityType: entityType,
		grants:     grants,
		store:      store,
		tx:         tx,
		feed:       feed,
		logger:     o.logger,
		metrics:    o.metrics,
	}
}

// EntityType is the name this registry is tracked under.
func (s *Service[T]) EntityType() string { return s.entityType }

func (s *Service[T]) authorize(ctx context.Context, actor *identity.Actor, op authz.Operation) error {
	if err := authz.Authorize(actor, op, s.grants...); err != nil {
		s.logger.InfoContext(ctx, "registry access denied",
			"entity_type", s.entityType,
			"operation", string(op),
			"role", identity.RoleOf(actor).String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.observe(op, outcomeDenied)
		return err
	}
	return nil
}

// Create validates rec and stores it.
func (s *Service[T]) Create(ctx context.Context, actor *identity.Actor, rec T) (T, error) {
	var zero T
	if err := s.authorize(ctx, actor, authz.OpCreate); err != nil {
		return zero, err
	}
	rec = rec.Clone()
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	now := requestcontext.Now(ctx).UTC()
	rec.Stamp(now, now)

	change := changefeed.Change{
		EntityType: s.entityType,
		EntityID:   rec.Key(),
		Kind:       changefeed.Created,
		Actor:      actor,
		After:      rec,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.feed.Apply(ctx, change, func(ctx context.Context) error {
			return s.store.Create(ctx, rec)
		})
	})
	if err != nil {
		return zero, s.fail(ctx, authz.OpCreate, rec.Key(), err)
	}
	s.observe(authz.OpCreate, outcomeOK)
	return rec, nil
}

// Get returns the record with code.
func (s *Service[T]) Get(ctx context.Context, actor *identity.Actor, code string) (T, error) {
	var zero T
	if err := s.authorize(ctx, actor, authz.OpRead); err != nil {
		return zero, err
	}
	code = strings.TrimSpace(code)
	rec, err := s.store.Get(ctx, code)
	if err != nil {
		return zero, s.fail(ctx, authz.OpRead, code, err)
	}
	return rec, nil
}

// List returns one page of records.
func (s *Service[T]) List(ctx context.Context, actor *identity.Actor, q models.ListQuery) (models.ListPage[T], error) {
	if err := s.authorize(ctx, actor, authz.OpRead); err != nil {
		return models.ListPage[T]{}, err
	}
	page, err := s.store.List(ctx, q.Normalize())
	if err != nil {
		return models.ListPage[T]{}, s.fail(ctx, authz.OpRead, "", err)
	}
	return page, nil
}

// Update replaces the record with code by rec. The code itself cannot change
// and the creation time is preserved.
func (s *Service[T]) Update(ctx context.Context, actor *identity.Actor, code string, rec T) (T, error) {
	var zero T
	if err := s.authorize(ctx, actor, authz.OpUpdate); err != nil {
		return zero, err
	}
	code = strings.TrimSpace(code)
	rec = rec.Clone()
	rec.SetKey(code)
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return zero, err
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.Get(ctx, code)
		if err != nil {
			return err
		}
		rec.Stamp(before.Created(), requestcontext.Now(ctx).UTC())

		change := changefeed.Change{
			EntityType: s.entityType,
			EntityID:   code,
			Kind:       changefeed.Updated,
			Actor:      actor,
			Before:     before,
			After:      rec,
		}
		return s.feed.Apply(ctx, change, func(ctx context.Context) error {
			return s.store.Update(ctx, rec)
		})
	})
	if err != nil {
		return zero, s.fail(ctx, authz.OpUpdate, code, err)
	}
	s.observe(authz.OpUpdate, outcomeOK)
	return rec, nil
}

// Delete removes the record with code. The code is captured before the row
// goes away so the change still names it.
func (s *Service[T]) Delete(ctx context.Context, actor *identity.Actor, code string) error {
	if err := s.authorize(ctx, actor, authz.OpDelete); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.Get(ctx, code)
		if err != nil {
			return err
		}
		change := changefeed.Change{
			EntityType: s.entityType,
			EntityID:   before.Key(),
			Kind:       changefeed.Deleted,
			Actor:      actor,
			Before:     before,
		}
		return s.feed.Apply(ctx, change, func(ctx context.Context) error {
			return s.store.Delete(ctx, code)
		})
	})
	if err != nil {
		return s.fail(ctx, authz.OpDelete, code, err)
	}
	s.observe(authz.OpDelete, outcomeOK)
	return nil
}

// fail translates store and observer errors into coded errors.
func (s *Service[T]) fail(ctx context.Context, op authz.Operation, code string, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, s.entityType+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, s.entityType+" code already exists")
	case errors.Is(err, context.DeadlineExceeded):
		s.observe(op, outcomeError)
		return dErrors.Wrap(err, dErrors.CodeTimeout, "registry operation timed out")
	}
	s.observe(op, outcomeError)
	s.logger.ErrorContext(ctx, "registry operation failed",
		"entity_type", s.entityType,
		"operation", string(op),
		"code", code,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "registry operation failed")
}

func (s *Service[T]) observe(op authz.Operation, outcome string) {
	if s.metrics != nil {
		s.metrics.IncOperation(s.entityType, string(op), outcome)
	}
}
