package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "gestionale/pkg/domain"
	audit "gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/pgerr"
	txcontext "gestionale/pkg/platform/tx"
)

const savepoint = "audit_append"

// Store implements audit.Store on the audit_entries table. With the outbox
// enabled every entry is also queued in audit_outbox, in the same transaction,
// for export by the outbox relay.
type Store struct {
	db     *sql.DB
	outbox bool
}

// Option configures a Store.
type Option func(*Store)

// WithOutbox queues every appended entry for export.
func WithOutbox() Option {
	return func(s *Store) {
		s.outbox = true
	}
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// OutboxPayload is the JSON document exported for each entry.
type OutboxPayload struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Timestamp  string         `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    *audit.Details `json:"details,omitempty"`
}

// Append writes entry. Inside a caller's transaction the insert runs behind a
// savepoint, so a missing table does not abort the caller's unit of work.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if tx, ok := txcontext.From(ctx); ok {
		return s.appendInTx(ctx, tx, entry)
	}
	if !s.outbox {
		return classify(s.insert(ctx, s.db, entry))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.insert(ctx, tx, entry); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit transaction: %w", err)
	}
	return nil
}

func (s *Store) appendInTx(ctx context.Context, tx *sql.Tx, entry audit.Entry) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("create audit savepoint: %w", err)
	}
	if err := s.insert(ctx, tx, entry); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return errors.Join(classify(err), fmt.Errorf("rollback audit savepoint: %w", rbErr))
		}
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, exec dbExecutor, entry audit.Entry) error {
	var details any
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(raw)
	}

	query := `
		INSERT INTO audit_entries (id, actor_id, action, entity_type, entity_id, request_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := exec.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		nullableUserID(entry.ActorID),
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.RequestID,
		details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if !s.outbox {
		return nil
	}
	payload, err := json.Marshal(toPayload(entry))
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(id.NewOutboxID()), uuid.UUID(entry.ID), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// List returns one page of entries matching q.
func (s *Store) List(ctx context.Context, q audit.Query) (audit.Page, error) {
	q = q.Normalize()
	where, args := buildFilter(q)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_entries" + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return audit.Page{}, classify(fmt.Errorf("count audit entries: %w", err))
	}

	direction := "DESC"
	if q.Order == audit.OrderAsc {
		direction = "ASC"
	}
	args = append(args, q.Limit, q.Offset)
	listQuery := fmt.Sprintf(`
		SELECT id, actor_id, action, entity_type, entity_id, request_id, details, created_at
		FROM audit_entries%s
		ORDER BY created_at %s, seq %s
		LIMIT $%d OFFSET $%d
	`, where, direction, direction, len(args)-1, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, listQuery, args...)
	if err != nil {
		return audit.Page{}, classify(fmt.Errorf("query audit entries: %w", err))
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return audit.Page{}, err
	}
	return audit.Page{Entries: entries, Total: total}, nil
}

func buildFilter(q audit.Query) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.EntityType != "" {
		add("entity_type = $%d", q.EntityType)
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if !q.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(q.ActorID))
	}
	if q.Action != "" {
		add("action = $%d", string(q.Action))
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at < $%d", q.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			entryID uuid.UUID
			actorID uuid.NullUUID
			action  string
			details []byte
		)
		if err := rows.Scan(&entryID, &actorID, &action, &e.EntityType, &e.EntityID, &e.RequestID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		if actorID.Valid {
			e.ActorID = id.UserID(actorID.UUID)
		}
		e.Action = audit.Action(action)
		e.Timestamp = e.Timestamp.UTC()
		if len(details) > 0 {
			var d audit.Details
			if err := json.Unmarshal(details, &d); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
			e.Details = &d
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func toPayload(e audit.Entry) OutboxPayload {
	p := OutboxPayload{
		ID:         e.ID.String(),
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		RequestID:  e.RequestID,
		Details:    e.Details,
	}
	if e.HasActor() {
		p.ActorID = e.ActorID.String()
	}
	return p
}

func nullableUserID(u id.UserID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: !u.IsNil()}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgerr.IsUndefinedTable(err) {
		return fmt.Errorf("%w: %w", audit.ErrStorageNotReady, err)
	}
	return err
}
