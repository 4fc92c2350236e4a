package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/audit/store/memory"
)

type HandlerSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	router chi.Router
	admin  id.UserID
	base   time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.admin = id.NewUserID()
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ctx := context.Background()
	seed := []audit.Entry{
		{ID: id.NewEntryID(), ActorID: s.admin, Action: audit.ActionCreated, EntityType: "Customer", EntityID: "CLI001", Timestamp: s.base},
		{ID: id.NewEntryID(), ActorID: s.admin, Action: audit.ActionUpdated, EntityType: "Customer", EntityID: "CLI001", Timestamp: s.base.Add(time.Hour)},
		{ID: id.NewEntryID(), Action: audit.ActionDeleted, EntityType: "Supplier", EntityID: "FOR007", Timestamp: s.base.Add(2 * time.Hour)},
	}
	for _, e := range seed {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	s.router = chi.NewRouter()
	New(s.store, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterAdmin(s.router)
}

func (s *HandlerSuite) get(query string) (*httptest.ResponseRecorder, ListResponse) {
	req := httptest.NewRequest(http.MethodGet, "/admin/audit-log?"+query, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var body ListResponse
	if rec.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (s *HandlerSuite) TestDefaultsToNewestFirst() {
	rec, body := s.get("")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(3, body.Total)
	s.Require().Len(body.Entries, 3)
	s.Equal("FOR007", body.Entries[0].EntityID)
	s.Equal(audit.DefaultPageSize, body.PageSize)
	s.Equal(1, body.Page)
}

func (s *HandlerSuite) TestUnattributedEntryHasNullActor() {
	_, body := s.get("entity_type=Supplier")
	s.Require().Len(body.Entries, 1)
	s.Nil(body.Entries[0].ActorID)
}

func (s *HandlerSuite) TestFiltersAndAscendingOrder() {
	_, body := s.get("entity_type=Customer&order=asc&actor_id=" + s.admin.String())
	s.Require().Len(body.Entries, 2)
	s.Equal(audit.ActionCreated, body.Entries[0].Action)
	s.Equal(audit.ActionUpdated, body.Entries[1].Action)
}

func (s *HandlerSuite) TestTimeRange() {
	from := s.base.Add(30 * time.Minute).Format(time.RFC3339)
	to := s.base.Add(2 * time.Hour).Format(time.RFC3339)
	_, body := s.get("from=" + url.QueryEscape(from) + "&to=" + url.QueryEscape(to))
	s.Require().Len(body.Entries, 1)
	s.Equal(audit.ActionUpdated, body.Entries[0].Action)
}

func (s *HandlerSuite) TestPaging() {
	_, body := s.get("page=2&page_size=2")
	s.Equal(3, body.Total)
	s.Require().Len(body.Entries, 1)
	s.Equal(audit.ActionCreated, body.Entries[0].Action)
}

func (s *HandlerSuite) TestInvalidParameters() {
	for _, q := range []string{"order=sideways", "action=archive", "from=yesterday", "page=0", "actor_id=nope"} {
		rec, _ := s.get(q)
		s.Equal(http.StatusBadRequest, rec.Code, q)
	}
}

func TestParseQuery_ClampsPageSize(t *testing.T) {
	q, page, err := ParseQuery(url.Values{"page_size": {"500"}, "page": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, audit.MaxPageSize, q.Limit)
	assert.Equal(t, 2*audit.MaxPageSize, q.Offset)
	assert.Equal(t, 3, page)
}

func TestParseQuery_PageBounds(t *testing.T) {
	q, page, err := ParseQuery(url.Values{"page": {strconv.Itoa(maxPage)}, "page_size": {"100"}})
	require.NoError(t, err)
	assert.Equal(t, maxPage, page)
	assert.Positive(t, q.Offset)

	_, _, err = ParseQuery(url.Values{"page": {strconv.Itoa(maxPage + 1)}})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = ParseQuery(url.Values{"page": {strconv.Itoa(math.MaxInt)}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseQuery_RejectsInvertedRange(t *testing.T) {
	_, _, err := ParseQuery(url.Values{
		"from": {"2026-03-02T00:00:00Z"},
		"to":   {"2026-03-01T00:00:00Z"},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
