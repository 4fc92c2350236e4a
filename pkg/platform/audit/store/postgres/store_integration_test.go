//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gestionale/internal/platform/config"
	platformpg "gestionale/internal/platform/postgres"
	id "gestionale/pkg/domain"
	audit "gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/audit/store/postgres"
	txcontext "gestionale/pkg/platform/tx"
	"gestionale/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	base     time.Time
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB, postgres.WithOutbox())
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "audit_entries", "audit_outbox"))
}

func (s *AuditStoreSuite) entry(action audit.Action, entityType, entityID string, at time.Time) audit.Entry {
	return audit.Entry{
		ID:         id.NewEntryID(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  at,
	}
}

func (s *AuditStoreSuite) TestAppendAndList() {
	actor := id.NewUserID()
	first := s.entry(audit.ActionCreated, "Customer", "CLI001", s.base)
	first.ActorID = actor
	first.RequestID = "req-1"
	first.Details = &audit.Details{New: json.RawMessage(`{"code":"CLI001"}`)}
	second := s.entry(audit.ActionDeleted, "Supplier", "FOR007", s.base.Add(time.Minute))

	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, second))

	page, err := s.store.List(s.ctx, audit.Query{Order: audit.OrderAsc})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Entries, 2)
	s.Equal(first.ID, page.Entries[0].ID)
	s.Equal(actor, page.Entries[0].ActorID)
	s.Equal("req-1", page.Entries[0].RequestID)
	s.Require().NotNil(page.Entries[0].Details)
	s.JSONEq(`{"code":"CLI001"}`, string(page.Entries[0].Details.New))
	s.False(page.Entries[1].HasActor())

	page, err = s.store.List(s.ctx, audit.Query{EntityType: "Supplier"})
	s.Require().NoError(err)
	s.Require().Len(page.Entries, 1)
	s.Equal("FOR007", page.Entries[0].EntityID)

	page, err = s.store.List(s.ctx, audit.Query{ActorID: actor, From: s.base, To: s.base.Add(time.Second)})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
}

func (s *AuditStoreSuite) TestOrderingAndPaging() {
	for i := range 5 {
		s.Require().NoError(s.store.Append(s.ctx, s.entry(audit.ActionUpdated, "Customer", "CLI001", s.base.Add(time.Duration(i)*time.Second))))
	}

	page, err := s.store.List(s.ctx, audit.Query{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Require().Len(page.Entries, 2)
	s.Equal(s.base.Add(3*time.Second), page.Entries[0].Timestamp)
	s.Equal(s.base.Add(2*time.Second), page.Entries[1].Timestamp)
}

func (s *AuditStoreSuite) TestEntriesAreImmutable() {
	e := s.entry(audit.ActionCreated, "Customer", "CLI001", s.base)
	s.Require().NoError(s.store.Append(s.ctx, e))

	_, err := s.postgres.DB.ExecContext(s.ctx, `UPDATE audit_entries SET entity_id = 'X' WHERE id = $1`, e.ID.String())
	s.Error(err)
	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM audit_entries WHERE id = $1`, e.ID.String())
	s.Error(err)
}

func (s *AuditStoreSuite) TestOutboxRowIsWrittenWithEntry() {
	e := s.entry(audit.ActionCreated, "Customer", "CLI001", s.base)
	s.Require().NoError(s.store.Append(s.ctx, e))

	var payload []byte
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx,
		`SELECT payload FROM audit_outbox WHERE entry_id = $1`, e.ID.String()).Scan(&payload))
	var got postgres.OutboxPayload
	s.Require().NoError(json.Unmarshal(payload, &got))
	s.Equal("CLI001", got.EntityID)
	s.Empty(got.ActorID)
}

func (s *AuditStoreSuite) TestAppendInsideCallerTransaction() {
	runner := txcontext.NewRunner(s.postgres.DB, 5*time.Second)
	e := s.entry(audit.ActionCreated, "Customer", "CLI009", s.base)

	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, e); err != nil {
			return err
		}
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	page, err := s.store.List(s.ctx, audit.Query{})
	s.Require().NoError(err)
	s.Zero(page.Total, "rolled back with the caller's transaction")
}

func (s *AuditStoreSuite) TestMissingTableIsNotReady() {
	db := s.emptySchemaDB()
	store := postgres.New(db)

	err := store.Append(s.ctx, s.entry(audit.ActionCreated, "Customer", "CLI001", s.base))
	s.ErrorIs(err, audit.ErrStorageNotReady)

	s.Run("inside a transaction the caller can still commit", func() {
		tx, err := db.BeginTx(s.ctx, nil)
		s.Require().NoError(err)
		defer func() { _ = tx.Rollback() }()

		err = store.Append(txcontext.WithTx(s.ctx, tx), s.entry(audit.ActionCreated, "Customer", "CLI001", s.base))
		s.ErrorIs(err, audit.ErrStorageNotReady)

		var one int
		s.Require().NoError(tx.QueryRowContext(s.ctx, `SELECT 1`).Scan(&one))
		s.NoError(tx.Commit())
	})
}

func (s *AuditStoreSuite) emptySchemaDB() *sql.DB {
	_, err := s.postgres.DB.ExecContext(s.ctx, `CREATE SCHEMA IF NOT EXISTS bootstrap_empty`)
	s.Require().NoError(err)
	db, err := platformpg.Open(s.ctx, config.DatabaseConfig{
		URL:    s.postgres.DSN + "&search_path=bootstrap_empty",
		Driver: "postgres",
	})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	return db
}
