package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	"gestionale/pkg/platform/pgerr"
	"gestionale/pkg/platform/sentinel"
	txcontext "gestionale/pkg/platform/tx"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, role, active, created_at, updated_at`

// PostgresStore persists accounts in the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID.String(), u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
		string(u.Role), u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*identity.User, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID.String())
	return s.one(row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	return s.one(row)
}

func (s *PostgresStore) Update(ctx context.Context, u *identity.User) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE users SET email = $2, first_name = $3, last_name = $4, password_hash = $5,
			role = $6, active = $7, updated_at = $8
		WHERE id = $1`,
		u.ID.String(), u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Role), u.Active, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*identity.User, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY lower(username)`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []*identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) one(row *sql.Row) (*identity.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads a row. Stored roles go through ParseRole so legacy names map
// onto the current roles; anything else is kept raw and evaluates as unknown.
func scanUser(row scanner) (*identity.User, error) {
	var (
		u       identity.User
		rawID   string
		rawRole string
	)
	if err := row.Scan(&rawID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&rawRole, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, err
	}
	u.ID = userID
	u.Role, _ = identity.ParseRole(rawRole)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
