package audittrail

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks Recorder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gestionale/internal/audittrail/mocks"
	"gestionale/internal/changefeed"
	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	audit "gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/audit/store/memory"
	"gestionale/pkg/requestcontext"
)

type DispatcherSuite struct {
	suite.Suite
	store      *memory.InMemoryStore
	metrics    *audit.Metrics
	logs       *bytes.Buffer
	dispatcher *Dispatcher
	feed       *changefeed.Feed
	ctx        context.Context
	now        time.Time
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.metrics = audit.NewMetrics(prometheus.NewRegistry())
	s.logs = &bytes.Buffer{}
	s.now = time.Date(2026, 6, 1, 9, 15, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	recorder := audit.NewRecorder(s.store, audit.WithLogger(logger), audit.WithMetrics(s.metrics))
	s.dispatcher = NewDispatcher(recorder,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
	)
	s.feed = changefeed.New()
	s.dispatcher.Attach(s.feed, "Customer", "Supplier", audit.EntityTypeAuditEntry)
	s.ctx = context.Background()
}

func (s *DispatcherSuite) entries() []audit.Entry {
	page, err := s.store.List(s.ctx, audit.Query{Order: audit.OrderAsc, Limit: audit.MaxPageSize})
	s.Require().NoError(err)
	return page.Entries
}

func (s *DispatcherSuite) TestOneEntryPerMutation() {
	admin := &identity.Actor{UserID: id.NewUserID(), Role: identity.RoleAdmin}

	s.Require().NoError(s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created, Actor: admin}))
	s.Require().NoError(s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Updated}))
	s.Require().NoError(s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Supplier", EntityID: "FOR007", Kind: changefeed.Deleted, Actor: admin}))

	got := s.entries()
	s.Require().Len(got, 3)

	s.Equal(audit.ActionCreated, got[0].Action)
	s.Equal("Customer", got[0].EntityType)
	s.Equal("CLI001", got[0].EntityID)
	s.Equal(admin.UserID, got[0].ActorID)
	s.Equal(s.now, got[0].Timestamp)

	s.Equal(audit.ActionUpdated, got[1].Action)
	s.Equal("CLI001", got[1].EntityID)
	s.False(got[1].HasActor(), "no actor supplied means unknown actor")

	s.Equal(audit.ActionDeleted, got[2].Action)
	s.Equal("FOR007", got[2].EntityID)
}

func (s *DispatcherSuite) TestAnonymousActorIsNotAttributed() {
	s.Require().NoError(s.dispatcher.OnChange(s.ctx, changefeed.Change{
		EntityType: "Customer", EntityID: "CLI009", Kind: changefeed.Created,
		Actor: &identity.Actor{Username: "ghost"},
	}))
	s.False(s.entries()[0].HasActor())
}

func (s *DispatcherSuite) TestSuppressionRules() {
	s.Run("self reference", func() {
		err := s.feed.Notify(s.ctx, changefeed.Change{EntityType: audit.EntityTypeAuditEntry, EntityID: "e1", Kind: changefeed.Created})
		s.NoError(err)
		s.Empty(s.entries())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Suppressed.WithLabelValues(SuppressedSelfReference)))
	})

	s.Run("missing id", func() {
		for _, blank := range []string{"", "   "} {
			err := s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: blank, Kind: changefeed.Created})
			s.NoError(err)
		}
		s.Empty(s.entries())
		s.Equal(2.0, testutil.ToFloat64(s.metrics.Suppressed.WithLabelValues(SuppressedMissingID)))
	})

	s.Run("bootstrap phase", func() {
		s.dispatcher.BeginBootstrap()
		err := s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created})
		s.NoError(err)
		s.Empty(s.entries())

		s.dispatcher.EndBootstrap()
		s.Require().NoError(s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created}))
		s.Len(s.entries(), 1)
		s.store.Clear()
	})

	s.Run("storage not provisioned", func() {
		s.store.SetReady(false)
		err := s.feed.Notify(s.ctx, changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created})
		s.NoError(err, "not-ready storage is a silent skip")
		s.store.SetReady(true)
		s.Empty(s.entries())
		s.Equal(2.0, testutil.ToFloat64(s.metrics.Suppressed.WithLabelValues(SuppressedStorageNotReady)))
	})
}

func (s *DispatcherSuite) TestRequestIDAndDetails() {
	ctx := requestcontext.WithRequestID(s.ctx, "req-42")
	type snapshot struct {
		City string `json:"city"`
	}
	err := s.dispatcher.OnChange(ctx, changefeed.Change{
		EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Updated,
		Before: snapshot{City: "Milano"}, After: snapshot{City: "Roma"},
	})
	s.Require().NoError(err)

	e := s.entries()[0]
	s.Equal("req-42", e.RequestID)
	s.Require().NotNil(e.Details)
	s.JSONEq(`{"city":"Milano"}`, string(e.Details.Old))
	s.JSONEq(`{"city":"Roma"}`, string(e.Details.New))
}

func (s *DispatcherSuite) TestUnencodableSnapshotIsDropped() {
	err := s.dispatcher.OnChange(s.ctx, changefeed.Change{
		EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Updated,
		After: map[string]any{"bad": make(chan int)},
	})
	s.Require().NoError(err)
	s.Nil(s.entries()[0].Details)
}

func TestDispatcher_WriteFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	logs := &bytes.Buffer{}
	d := NewDispatcher(recorder, WithLogger(slog.New(slog.NewTextHandler(logs, nil))))

	writeErr := errors.Join(audit.ErrStorageWrite, errors.New("connection reset"))
	recorder.EXPECT().Append(gomock.Any(), gomock.Any()).Return(id.EntryID{}, writeErr).Times(1)

	err := d.OnChange(context.Background(), changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created})
	if !errors.Is(err, audit.ErrStorageWrite) {
		t.Fatalf("expected storage write error, got %v", err)
	}
	if !strings.Contains(logs.String(), "CRITICAL") {
		t.Fatalf("expected write failure to be logged, got %q", logs.String())
	}
}

func TestDispatcher_SuppressedChangesNeverReachRecorder(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	recorder.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
	d := NewDispatcher(recorder)

	changes := []changefeed.Change{
		{EntityType: audit.EntityTypeAuditEntry, EntityID: "x", Kind: changefeed.Created},
		{EntityType: "Customer", EntityID: "", Kind: changefeed.Deleted},
	}
	for _, c := range changes {
		if err := d.OnChange(context.Background(), c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	d.BeginBootstrap()
	if err := d.OnChange(context.Background(), changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: changefeed.Created}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcher_UnknownKindIsMalformed(t *testing.T) {
	d := NewDispatcher(audit.NewRecorder(memory.NewInMemoryStore()))
	err := d.OnChange(context.Background(), changefeed.Change{EntityType: "Customer", EntityID: "CLI001", Kind: "archived"})
	if !errors.Is(err, audit.ErrMalformedEntry) {
		t.Fatalf("expected malformed entry, got %v", err)
	}
}
