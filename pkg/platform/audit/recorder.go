package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	id "gestionale/pkg/domain"
)

const tracerName = "gestionale/pkg/platform/audit"

// Recorder appends entries with fail-closed semantics. Writes are synchronous:
// the caller blocks until the store accepts or rejects the entry.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append validates and persists entry, returning its id.
//
// A missing or unknown action, a missing entity type, or an entity type of
// AuditEntry yields ErrMalformedEntry. A missing table yields
// ErrStorageNotReady. Every other store failure is wrapped in ErrStorageWrite.
func (r *Recorder) Append(ctx context.Context, entry Entry) (id.EntryID, error) {
	ctx, span := r.tracer.Start(ctx, "audit.Append", trace.WithAttributes(
		attribute.String("audit.action", string(entry.Action)),
		attribute.String("audit.entity_type", entry.EntityType),
	))
	defer span.End()
	start := time.Now()

	if err := validate(entry); err != nil {
		span.SetStatus(codes.Error, err.Error())
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "rejected malformed audit entry",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"error", err,
			)
		}
		return id.EntryID{}, err
	}

	if entry.ID.IsNil() {
		entry.ID = id.NewEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	if err := r.store.Append(ctx, entry); err != nil {
		if errors.Is(err, ErrStorageNotReady) {
			span.AddEvent("storage not ready")
			return id.EntryID{}, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		if r.metrics != nil {
			r.metrics.IncWriteFailures()
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"entity_id", entry.EntityID,
				"error", err,
			)
		}
		return id.EntryID{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	if r.metrics != nil {
		r.metrics.ObserveAppendDuration(time.Since(start).Seconds())
		r.metrics.IncRecorded(entry.Action)
	}
	span.SetAttributes(attribute.String("audit.entry_id", entry.ID.String()))
	return entry.ID, nil
}

// List returns entries matching q. It is the read-only query surface.
func (r *Recorder) List(ctx context.Context, q Query) (Page, error) {
	return r.store.List(ctx, q.Normalize())
}

func validate(e Entry) error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrMalformedEntry)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrMalformedEntry, e.Action)
	}
	if strings.TrimSpace(e.EntityType) == "" {
		return fmt.Errorf("%w: entity type is required", ErrMalformedEntry)
	}
	if e.EntityType == EntityTypeAuditEntry {
		return fmt.Errorf("%w: audit entries cannot be audited", ErrMalformedEntry)
	}
	return nil
}
