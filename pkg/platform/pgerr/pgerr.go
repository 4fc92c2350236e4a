// Package pgerr classifies PostgreSQL errors independently of the driver in use.
// Both lib/pq and pgx are registered with database/sql, so stores can see either
// *pq.Error or *pgconn.PgError.
package pgerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the stores react to.
const (
	UndefinedTable  = "42P01"
	UniqueViolation = "23505"
)

// Code returns the SQLSTATE of err, or "" when err is not a PostgreSQL error.
func Code(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUndefinedTable reports a missing relation, as seen before migrations run.
func IsUndefinedTable(err error) bool {
	return Code(err) == UndefinedTable
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return Code(err) == UniqueViolation
}
