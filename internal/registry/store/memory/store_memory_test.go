package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"gestionale/internal/registry/models"
	"gestionale/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *InMemoryStore[*models.Customer]
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = NewCustomers()
	s.ctx = context.Background()
}

func customer(code, first, last, company string) *models.Customer {
	return &models.Customer{Code: code, Kind: models.CustomerPrivate, Party: models.Party{FirstName: first, LastName: last, CompanyName: company}}
}

func (s *StoreSuite) TestCreateGetRoundTrip() {
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI001", "Mario", "Rossi", "")))
	got, err := s.store.Get(s.ctx, "CLI001")
	s.Require().NoError(err)
	s.Equal("Mario", got.FirstName)
}

func (s *StoreSuite) TestCreateDuplicateConflicts() {
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI001", "Mario", "", "")))
	s.ErrorIs(s.store.Create(s.ctx, customer("CLI001", "Luigi", "", "")), sentinel.ErrConflict)
}

func (s *StoreSuite) TestReturnedRecordsAreCopies() {
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI001", "Mario", "", "")))
	got, err := s.store.Get(s.ctx, "CLI001")
	s.Require().NoError(err)
	got.FirstName = "changed"

	again, err := s.store.Get(s.ctx, "CLI001")
	s.Require().NoError(err)
	s.Equal("Mario", again.FirstName)
}

func (s *StoreSuite) TestUpdateAndDeleteMissing() {
	s.ErrorIs(s.store.Update(s.ctx, customer("NOPE", "x", "", "")), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, "NOPE"), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestDeleteRemoves() {
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI001", "Mario", "", "")))
	s.Require().NoError(s.store.Delete(s.ctx, "CLI001"))
	_, err := s.store.Get(s.ctx, "CLI001")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestListOrderSearchAndPaging() {
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI003", "Carla", "Verdi", "Zeta Spa")))
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI001", "Mario", "Rossi", "")))
	s.Require().NoError(s.store.Create(s.ctx, customer("CLI002", "Anna", "Bianchi", "")))

	page, err := s.store.List(s.ctx, models.ListQuery{})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Require().Len(page.Items, 3)
	s.Equal([]string{"CLI002", "CLI001", "CLI003"}, []string{page.Items[0].Code, page.Items[1].Code, page.Items[2].Code})

	page, err = s.store.List(s.ctx, models.ListQuery{Search: "ROSSI"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)

	page, err = s.store.List(s.ctx, models.ListQuery{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Items, 1)

	page, err = s.store.List(s.ctx, models.ListQuery{Offset: 50})
	s.Require().NoError(err)
	s.Empty(page.Items)
}

func (s *StoreSuite) TestDefaultPageSize() {
	for i := range 15 {
		s.Require().NoError(s.store.Create(s.ctx, customer(fmt.Sprintf("CLI%03d", i), "Nome", fmt.Sprintf("Cognome%02d", i), "")))
	}
	page, err := s.store.List(s.ctx, models.ListQuery{})
	s.Require().NoError(err)
	s.Equal(15, page.Total)
	s.Len(page.Items, models.DefaultPageSize)
}
