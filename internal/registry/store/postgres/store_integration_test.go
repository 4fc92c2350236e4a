//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gestionale/internal/registry/models"
	"gestionale/internal/registry/store/postgres"
	"gestionale/pkg/platform/sentinel"
	txcontext "gestionale/pkg/platform/tx"
	"gestionale/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	customers *postgres.Store[*models.Customer]
	suppliers *postgres.Store[*models.Supplier]
	ctx       context.Context
	now       time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.customers = postgres.NewCustomers(s.postgres.DB)
	s.suppliers = postgres.NewSuppliers(s.postgres.DB)
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "customers", "suppliers"))
}

func (s *PostgresStoreSuite) customer(code, last, company string) *models.Customer {
	return &models.Customer{
		Code: code,
		Kind: models.CustomerBusiness,
		Party: models.Party{
			FirstName: "Nome", LastName: last, CompanyName: company,
			City: "Milano", PostalCode: "20100", Province: "MI",
			CreatedAt: s.now, UpdatedAt: s.now,
		},
	}
}

func (s *PostgresStoreSuite) TestCreateGetUpdateDelete() {
	s.Require().NoError(s.customers.Create(s.ctx, s.customer("CLI001", "Rossi", "")))

	got, err := s.customers.Get(s.ctx, "CLI001")
	s.Require().NoError(err)
	s.Equal(models.CustomerBusiness, got.Kind)
	s.Equal("Rossi", got.LastName)
	s.True(s.now.Equal(got.CreatedAt))

	got.Notes = "cliente storico"
	got.UpdatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.customers.Update(s.ctx, got))

	again, err := s.customers.Get(s.ctx, "CLI001")
	s.Require().NoError(err)
	s.Equal("cliente storico", again.Notes)

	s.Require().NoError(s.customers.Delete(s.ctx, "CLI001"))
	_, err = s.customers.Get(s.ctx, "CLI001")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateCodeConflicts() {
	s.Require().NoError(s.customers.Create(s.ctx, s.customer("CLI001", "Rossi", "")))
	s.ErrorIs(s.customers.Create(s.ctx, s.customer("CLI001", "Bianchi", "")), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestMissingRows() {
	s.ErrorIs(s.customers.Update(s.ctx, s.customer("NOPE", "x", "")), sentinel.ErrNotFound)
	s.ErrorIs(s.customers.Delete(s.ctx, "NOPE"), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListOrderingAndSearch() {
	s.Require().NoError(s.customers.Create(s.ctx, s.customer("CLI003", "Verdi", "Zeta Spa")))
	s.Require().NoError(s.customers.Create(s.ctx, s.customer("CLI001", "Rossi", "")))
	s.Require().NoError(s.customers.Create(s.ctx, s.customer("CLI002", "Bianchi", "")))

	page, err := s.customers.List(s.ctx, models.ListQuery{})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Require().Len(page.Items, 3)
	s.Equal("CLI002", page.Items[0].Code)
	s.Equal("CLI003", page.Items[2].Code)

	page, err = s.customers.List(s.ctx, models.ListQuery{Search: "zeta"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)

	page, err = s.customers.List(s.ctx, models.ListQuery{Search: "100%"})
	s.Require().NoError(err)
	s.Equal(0, page.Total)
}

func (s *PostgresStoreSuite) TestSupplierRoundTrip() {
	sup := &models.Supplier{
		Code:     "FOR007",
		Category: models.SupplierParts,
		Party: models.Party{
			FirstName: "Luca", CompanyName: "Ricambi Srl",
			City: "Asti", PostalCode: "14100", Province: "AT",
			CreatedAt: s.now, UpdatedAt: s.now,
		},
	}
	s.Require().NoError(s.suppliers.Create(s.ctx, sup))
	got, err := s.suppliers.Get(s.ctx, "FOR007")
	s.Require().NoError(err)
	s.Equal(models.SupplierParts, got.Category)
}

func (s *PostgresStoreSuite) TestRollbackDiscardsWrites() {
	runner := txcontext.NewRunner(s.postgres.DB, 0)
	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.customers.Create(ctx, s.customer("CLI009", "Neri", "")); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.customers.Get(s.ctx, "CLI009")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
