// Package audittrail turns change-feed notifications into audit entries.
package audittrail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gestionale/internal/changefeed"
	id "gestionale/pkg/domain"
	audit "gestionale/pkg/platform/audit"
	"gestionale/pkg/requestcontext"
)

// Suppression reasons, in the order they are checked.
const (
	SuppressedSelfReference   = "self_reference"
	SuppressedMissingID       = "missing_id"
	SuppressedStorageNotReady = "storage_not_ready"
)

// Recorder appends one entry.
type Recorder interface {
	Append(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// Dispatcher is the change-feed observer that records audit entries.
//
// It makes exactly one Append per change that is not suppressed and never
// retries. Only a storage-not-ready condition is swallowed; any other write
// failure is logged and returned to the caller of the mutation.
type Dispatcher struct {
	recorder      Recorder
	logger        *slog.Logger
	metrics       *audit.Metrics
	tracer        trace.Tracer
	now           func() time.Time
	bootstrapping atomic.Bool
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *audit.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a Dispatcher writing through recorder.
func NewDispatcher(recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recorder: recorder,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("gestionale/internal/audittrail"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach opts entityTypes into feed and registers d as its observer.
// Call once at process start.
func (d *Dispatcher) Attach(feed *changefeed.Feed, entityTypes ...string) {
	feed.Track(entityTypes...)
	feed.Register(d)
}

// BeginBootstrap marks storage as not ready: changes are skipped silently
// until EndBootstrap. Used while migrations and seeding run.
func (d *Dispatcher) BeginBootstrap() {
	d.bootstrapping.Store(true)
}

// EndBootstrap resumes recording.
func (d *Dispatcher) EndBootstrap() {
	d.bootstrapping.Store(false)
}

// OnChange implements changefeed.Observer.
func (d *Dispatcher) OnChange(ctx context.Context, change changefeed.Change) error {
	ctx, span := d.tracer.Start(ctx, "audittrail.OnChange", trace.WithAttributes(
		attribute.String("entity.type", change.EntityType),
		attribute.String("change.kind", string(change.Kind)),
	))
	defer span.End()

	if change.EntityType == audit.EntityTypeAuditEntry {
		d.suppress(ctx, change, SuppressedSelfReference)
		return nil
	}
	if strings.TrimSpace(change.EntityID) == "" {
		d.suppress(ctx, change, SuppressedMissingID)
		return nil
	}
	if d.bootstrapping.Load() {
		d.suppress(ctx, change, SuppressedStorageNotReady)
		return nil
	}

	entry := audit.Entry{
		Action:     actionFor(change.Kind),
		EntityType: change.EntityType,
		EntityID:   change.EntityID,
		Timestamp:  d.now(),
		RequestID:  requestcontext.RequestID(ctx),
		Details:    d.details(ctx, change),
	}
	if change.Actor.Authenticated() {
		entry.ActorID = change.Actor.UserID
	}

	entryID, err := d.recorder.Append(ctx, entry)
	if errors.Is(err, audit.ErrStorageNotReady) {
		d.suppress(ctx, change, SuppressedStorageNotReady)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		d.logger.ErrorContext(ctx, "CRITICAL: change not recorded in audit trail",
			"entity_type", change.EntityType,
			"entity_id", change.EntityID,
			"kind", change.Kind,
			"error", err,
		)
		return err
	}
	span.SetAttributes(attribute.String("audit.entry_id", entryID.String()))
	return nil
}

func (d *Dispatcher) suppress(ctx context.Context, change changefeed.Change, reason string) {
	if d.metrics != nil {
		d.metrics.IncSuppressed(reason)
	}
	d.logger.DebugContext(ctx, "audit entry suppressed",
		"reason", reason,
		"entity_type", change.EntityType,
		"entity_id", change.EntityID,
	)
}

// details snapshots Before/After as JSON. Snapshots that cannot be encoded
// are dropped; the entry itself is still written.
func (d *Dispatcher) details(ctx context.Context, change changefeed.Change) *audit.Details {
	if change.Before == nil && change.After == nil {
		return nil
	}
	var det audit.Details
	var err error
	if change.Before != nil {
		if det.Old, err = json.Marshal(change.Before); err != nil {
			d.logger.WarnContext(ctx, "dropping unencodable audit snapshot", "entity_type", change.EntityType, "error", err)
			det.Old = nil
		}
	}
	if change.After != nil {
		if det.New, err = json.Marshal(change.After); err != nil {
			d.logger.WarnContext(ctx, "dropping unencodable audit snapshot", "entity_type", change.EntityType, "error", err)
			det.New = nil
		}
	}
	if det.Old == nil && det.New == nil {
		return nil
	}
	return &det
}

func actionFor(k changefeed.Kind) audit.Action {
	switch k {
	case changefeed.Created:
		return audit.ActionCreated
	case changefeed.Updated:
		return audit.ActionUpdated
	case changefeed.Deleted:
		return audit.ActionDeleted
	default:
		// Left empty so the recorder rejects the entry as malformed.
		return ""
	}
}
