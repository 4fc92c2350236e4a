// Package app wires stores, services and transport from configuration.
//
// With DATABASE_URL set every store is backed by PostgreSQL and mutations run
// in SQL transactions; otherwise the process runs on in-memory stores. Redis,
// when configured, backs token revocation and the login limiter. Kafka, when
// configured together with PostgreSQL, receives the audit outbox.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"gestionale/internal/audittrail"
	audithandler "gestionale/internal/audittrail/handler"
	authhandler "gestionale/internal/auth/handler"
	authservice "gestionale/internal/auth/service"
	"gestionale/internal/auth/store/revocation"
	userstore "gestionale/internal/auth/store/user"
	"gestionale/internal/auth/token"
	"gestionale/internal/changefeed"
	"gestionale/internal/identity"
	"gestionale/internal/platform/config"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/platform/postgres"
	redisclient "gestionale/internal/platform/redis"
	"gestionale/internal/ratelimit"
	ratelimitmemory "gestionale/internal/ratelimit/store/memory"
	ratelimitredis "gestionale/internal/ratelimit/store/redis"
	registryhandler "gestionale/internal/registry/handler"
	"gestionale/internal/registry/models"
	registryservice "gestionale/internal/registry/service"
	registrymemory "gestionale/internal/registry/store/memory"
	registrypg "gestionale/internal/registry/store/postgres"
	httptransport "gestionale/internal/transport/http"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/audit/outbox"
	auditmemory "gestionale/pkg/platform/audit/store/memory"
	auditpg "gestionale/pkg/platform/audit/store/postgres"
	authmw "gestionale/pkg/platform/middleware/auth"
	txcontext "gestionale/pkg/platform/tx"
)

// TrackedEntityTypes are the entity types whose changes are audited.
var TrackedEntityTypes = []string{models.EntityTypeCustomer, models.EntityTypeSupplier, identity.EntityType}

// App is the assembled process.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	DB         *sql.DB
	Redis      *redisclient.Client
	Feed       *changefeed.Feed
	Recorder   *audit.Recorder
	Dispatcher *audittrail.Dispatcher
	Auth       *authservice.Service
	Customers  *registryservice.Service[*models.Customer]
	Suppliers  *registryservice.Service[*models.Supplier]
	Relay      *outbox.Relay

	tokens      *token.JWTService
	revocations revocationList
	kafka       *outbox.KafkaPublisher
}

// revocationList is checked by the authentication middleware and written by logout.
type revocationList interface {
	authmw.TokenRevocationChecker
	authservice.TokenRevoker
}

type stores struct {
	tx interface {
		RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
	audit     audit.Store
	users     authservice.UserStore
	customers registryservice.Store[*models.Customer]
	suppliers registryservice.Store[*models.Supplier]
}

// New connects to the configured backends and builds every service. The
// returned App must be closed. Schema migrations and seeding are left to
// Bootstrap.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New(), Feed: changefeed.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	auditMetrics := audit.NewMetrics(a.Metrics.Registry)
	a.Recorder = audit.NewRecorder(st.audit, audit.WithLogger(logger), audit.WithMetrics(auditMetrics))
	a.Dispatcher = audittrail.NewDispatcher(a.Recorder,
		audittrail.WithLogger(logger),
		audittrail.WithMetrics(auditMetrics),
	)
	a.Dispatcher.Attach(a.Feed, TrackedEntityTypes...)

	limiter, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}

	a.tokens = token.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	a.Auth = authservice.New(st.users, a.tokens, a.revocations, limiter, st.tx, a.Feed,
		authservice.WithLogger(logger),
		authservice.WithMetrics(authservice.NewMetrics(a.Metrics.Registry)),
	)

	registryMetrics := registryservice.NewMetrics(a.Metrics.Registry)
	a.Customers = registryservice.NewCustomers(st.customers, st.tx, a.Feed,
		registryservice.WithLogger(logger), registryservice.WithMetrics(registryMetrics))
	a.Suppliers = registryservice.NewSuppliers(st.suppliers, st.tx, a.Feed,
		registryservice.WithLogger(logger), registryservice.WithMetrics(registryMetrics))

	if err := a.openKafka(ctx, auditMetrics); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.Config.Database.URL == "" {
		a.Logger.Warn("DATABASE_URL not set, using in-memory stores")
		return stores{
			tx:        txcontext.NewLockRunner(),
			audit:     auditmemory.NewInMemoryStore(),
			users:     userstore.New(),
			customers: registrymemory.NewCustomers(),
			suppliers: registrymemory.NewSuppliers(),
		}, nil
	}

	db, err := postgres.Open(ctx, a.Config.Database)
	if err != nil {
		return stores{}, err
	}
	a.DB = db
	var auditOpts []auditpg.Option
	if a.Config.KafkaEnabled() {
		auditOpts = append(auditOpts, auditpg.WithOutbox())
	}
	return stores{
		tx:        txcontext.NewRunner(db, a.Config.Database.TxTimeout),
		audit:     auditpg.New(db, auditOpts...),
		users:     userstore.NewPostgres(db),
		customers: registrypg.NewCustomers(db),
		suppliers: registrypg.NewSuppliers(db),
	}, nil
}

func (a *App) openRedis(ctx context.Context) (*ratelimit.Limiter, error) {
	limits := ratelimit.WithLimits(a.Config.Auth.LoginMaxFailures, a.Config.Auth.LoginWindow)
	rlMetrics := ratelimit.NewMetrics(a.Metrics.Registry)

	client, err := redisclient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.revocations = revocation.NewInMemoryTRL()
		return ratelimit.New(ratelimitmemory.New(), limits,
			ratelimit.WithLogger(a.Logger), ratelimit.WithMetrics(rlMetrics)), nil
	}
	a.Redis = client
	a.revocations = revocation.NewRedisTRL(client.Client)
	return ratelimit.New(ratelimitredis.New(client.Client), limits,
		ratelimit.WithFallback(ratelimitmemory.New()),
		ratelimit.WithLogger(a.Logger),
		ratelimit.WithMetrics(rlMetrics),
	), nil
}

func (a *App) openKafka(ctx context.Context, m *audit.Metrics) error {
	if !a.Config.KafkaEnabled() {
		return nil
	}
	if a.DB == nil {
		a.Logger.Warn("KAFKA_BROKERS ignored: audit export needs the PostgreSQL outbox")
		return nil
	}
	pub, err := outbox.NewKafkaPublisher(a.Config.Kafka.Brokers, a.Config.Kafka.AuditTopic)
	if err != nil {
		return err
	}
	a.kafka = pub
	if err := pub.EnsureTopic(ctx, a.Config.Kafka.Partitions, a.Config.Kafka.ReplicationFactor); err != nil {
		return err
	}
	a.Relay = outbox.NewRelay(a.DB, pub,
		outbox.WithBatchSize(a.Config.Audit.OutboxBatchSize),
		outbox.WithInterval(a.Config.Audit.OutboxInterval),
		outbox.WithLogger(a.Logger),
		outbox.WithMetrics(m),
	)
	return nil
}

// Bootstrap applies migrations and seeds the configured administrator. The
// audit trail treats storage as not ready meanwhile, so nothing done here is
// recorded.
func (a *App) Bootstrap(ctx context.Context) error {
	a.Dispatcher.BeginBootstrap()
	defer a.Dispatcher.EndBootstrap()

	if a.DB != nil && a.Config.Database.Migrate {
		if err := postgres.Migrate(ctx, a.DB, a.Logger); err != nil {
			return err
		}
	}
	bc := a.Config.Bootstrap
	if bc.AdminUsername == "" {
		return nil
	}
	_, err := a.Auth.Provision(ctx, authservice.CreateUserCommand{
		Username: bc.AdminUsername,
		Password: bc.AdminPassword,
		Role:     identity.RoleAdmin,
	})
	switch {
	case err == nil:
		a.Logger.InfoContext(ctx, "seeded administrator", "username", bc.AdminUsername)
	case dErrors.HasCode(err, dErrors.CodeConflict):
		a.Logger.DebugContext(ctx, "administrator already provisioned", "username", bc.AdminUsername)
	default:
		return fmt.Errorf("seed administrator: %w", err)
	}
	return nil
}

// Handler builds the HTTP handler.
func (a *App) Handler() http.Handler {
	loginURL := a.Config.Auth.LoginURL
	authH := authhandler.New(a.Auth, loginURL, a.Logger)
	return httptransport.NewRouter(httptransport.Config{
		Logger:        a.Logger,
		Metrics:       a.Metrics,
		LoginURL:      loginURL,
		Authenticator: authmw.Authenticate(a.tokens, a.revocations, a.Auth, loginURL, a.Logger),
		Auth:          authH,
		Protected: []httptransport.Registrar{
			registryhandler.NewCustomers(a.Customers, loginURL, a.Logger),
			registryhandler.NewSuppliers(a.Suppliers, loginURL, a.Logger),
		},
		Admin: []httptransport.AdminRegistrar{
			authH,
			audithandler.New(a.Recorder, a.Logger),
		},
		Readiness: a.readiness(),
	})
}

func (a *App) readiness() map[string]httptransport.ReadinessCheck {
	checks := map[string]httptransport.ReadinessCheck{}
	if a.DB != nil {
		checks["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	if a.kafka != nil {
		checks["kafka"] = a.kafka.Ping
	}
	return checks
}

// Close releases every connection. Safe on a partially built App.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
