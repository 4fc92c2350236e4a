// Package outbox exports committed audit entries to an external log.
//
// The postgres audit store queues a row in audit_outbox in the same transaction
// as the entry, so only committed entries are ever exported. The Relay drains
// pending rows in batches; export is at-least-once and never affects the
// audit write itself.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "gestionale/pkg/domain"
	audit "gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/pgerr"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 2 * time.Second
)

// Message is one exported entry.
type Message struct {
	ID    id.OutboxID
	Key   []byte
	Value []byte
}

// Publisher delivers a batch of messages. A nil error means every message was
// acknowledged.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}

// Relay moves pending outbox rows to a Publisher.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *audit.Metrics
}

// Option configures a Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *audit.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// NewRelay creates a Relay.
func NewRelay(db *sql.DB, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		publisher: publisher,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
				}
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns the number of rows marked
// published. Rows are locked with SKIP LOCKED so several relays can run.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, entry_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		if pgerr.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select pending outbox rows: %w", err)
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, msgs); err != nil {
		if r.metrics != nil {
			r.metrics.IncOutboxFailures()
		}
		return 0, fmt.Errorf("publish outbox batch: %w", err)
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID.String()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		time.Now().UTC(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox rows published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox transaction: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AddOutboxPublished(len(msgs))
	}
	return len(msgs), nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var (
			outboxID uuid.UUID
			entryID  uuid.UUID
			payload  []byte
		)
		if err := rows.Scan(&outboxID, &entryID, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msgs = append(msgs, Message{
			ID:    id.OutboxID(outboxID),
			Key:   []byte(entryID.String()),
			Value: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return msgs, nil
}
