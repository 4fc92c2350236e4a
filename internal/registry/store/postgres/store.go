// Package postgres stores the customer and supplier registries in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gestionale/internal/registry/models"
	"gestionale/pkg/platform/pgerr"
	"gestionale/pkg/platform/sentinel"
	txcontext "gestionale/pkg/platform/tx"
)

const partyColumns = `first_name, last_name, company_name, vat_number, tax_code, address,
	city, postal_code, province, phone, email, notes, created_at, updated_at`

// Store persists one registry table. Writes join the transaction carried in
// the context, if any.
type Store[T models.Record[T]] struct {
	db      *sql.DB
	table   string
	column  string // kind or category
	explode func(T) (code, extra string, party *models.Party)
	build   func(code, extra string, party models.Party) T
}

// NewCustomers stores customers in the customers table.
func NewCustomers(db *sql.DB) *Store[*models.Customer] {
	return &Store[*models.Customer]{
		db:     db,
		table:  "customers",
		column: "kind",
		explode: func(c *models.Customer) (string, string, *models.Party) {
			return c.Code, string(c.Kind), &c.Party
		},
		build: func(code, kind string, p models.Party) *models.Customer {
			return &models.Customer{Code: code, Kind: models.CustomerKind(kind), Party: p}
		},
	}
}

// NewSuppliers stores suppliers in the suppliers table.
func NewSuppliers(db *sql.DB) *Store[*models.Supplier] {
	return &Store[*models.Supplier]{
		db:     db,
		table:  "suppliers",
		column: "category",
		explode: func(s *models.Supplier) (string, string, *models.Party) {
			return s.Code, string(s.Category), &s.Party
		},
		build: func(code, category string, p models.Party) *models.Supplier {
			return &models.Supplier{Code: code, Category: models.SupplierCategory(category), Party: p}
		},
	}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store[T]) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store[T]) Create(ctx context.Context, rec T) error {
	code, extra, p := s.explode(rec)
	query := fmt.Sprintf(`INSERT INTO %s (code, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.table, s.column, partyColumns)
	args := append([]any{code, extra}, partyArgs(p)...)
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert %s: %w", s.table, err)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, code string) (T, error) {
	query := fmt.Sprintf(`SELECT code, %s, %s FROM %s WHERE code = $1`, s.column, partyColumns, s.table)
	rec, err := s.scan(s.execer(ctx).QueryRowContext(ctx, query, code))
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, sentinel.ErrNotFound
		}
		return zero, fmt.Errorf("get %s: %w", s.table, err)
	}
	return rec, nil
}

func (s *Store[T]) Update(ctx context.Context, rec T) error {
	code, extra, p := s.explode(rec)
	query := fmt.Sprintf(`UPDATE %s SET %s = $2,
		first_name = $3, last_name = $4, company_name = $5, vat_number = $6, tax_code = $7,
		address = $8, city = $9, postal_code = $10, province = $11, phone = $12, email = $13,
		notes = $14, created_at = $15, updated_at = $16
		WHERE code = $1`, s.table, s.column)
	args := append([]any{code, extra}, partyArgs(p)...)
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.table, err)
	}
	return requireRow(res)
}

func (s *Store[T]) Delete(ctx context.Context, code string) error {
	res, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE code = $1`, s.table), code)
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.table, err)
	}
	return requireRow(res)
}

// List orders by company name, last name and first name. The search term
// matches those columns and the code, case-insensitively.
func (s *Store[T]) List(ctx context.Context, q models.ListQuery) (models.ListPage[T], error) {
	q = q.Normalize()
	where := ""
	var args []any
	if q.Search != "" {
		where = `WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR company_name ILIKE $1 OR code ILIKE $1`
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}

	page := models.ListPage[T]{Items: []T{}}
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where)
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count %s: %w", s.table, err)
	}

	n := len(args)
	listQuery := fmt.Sprintf(`SELECT code, %s, %s FROM %s %s
		ORDER BY company_name, last_name, first_name, code
		LIMIT $%d OFFSET $%d`, s.column, partyColumns, s.table, where, n+1, n+2)
	rows, err := s.execer(ctx).QueryContext(ctx, listQuery, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return page, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return page, fmt.Errorf("scan %s: %w", s.table, err)
		}
		page.Items = append(page.Items, rec)
	}
	return page, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store[T]) scan(row scanner) (T, error) {
	var (
		code, extra string
		p           models.Party
	)
	err := row.Scan(&code, &extra,
		&p.FirstName, &p.LastName, &p.CompanyName, &p.VATNumber, &p.TaxCode, &p.Address,
		&p.City, &p.PostalCode, &p.Province, &p.Phone, &p.Email, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var zero T
		return zero, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return s.build(code, extra, p), nil
}

func partyArgs(p *models.Party) []any {
	return []any{
		p.FirstName, p.LastName, p.CompanyName, p.VATNumber, p.TaxCode, p.Address,
		p.City, p.PostalCode, p.Province, p.Phone, p.Email, p.Notes, p.CreatedAt, p.UpdatedAt,
	}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
