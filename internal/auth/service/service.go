// Package service implements login, logout and account administration.
//
// Login failures are counted per client IP and block further attempts once
// the limit is reached. Account changes made by administrators go through the
// change feed under the User entity type; snapshots never carry the password
// hash.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gestionale/internal/auth/device"
	"gestionale/internal/auth/store/revocation"
	"gestionale/internal/auth/token"
	"gestionale/internal/changefeed"
	"gestionale/internal/identity"
	"gestionale/internal/ratelimit"
	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,TokenIssuer,TokenRevoker,LoginLimiter

// UserStore persists accounts. Lookups return sentinel.ErrNotFound and
// Create returns sentinel.ErrConflict for a duplicate username.
type UserStore interface {
	Create(ctx context.Context, u *identity.User) error
	FindByID(ctx context.Context, userID id.UserID) (*identity.User, error)
	FindByUsername(ctx context.Context, username string) (*identity.User, error)
	Update(ctx context.Context, u *identity.User) error
	List(ctx context.Context) ([]*identity.User, error)
}

type TokenIssuer interface {
	Issue(userID id.UserID, role identity.Role) (token.AccessToken, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// LoginLimiter counts failed logins per client IP.
type LoginLimiter interface {
	Check(ctx context.Context, ip string) (ratelimit.Result, error)
	RecordFailure(ctx context.Context, ip string) error
	Clear(ctx context.Context, ip string) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MinPasswordLength applies to passwords set through CreateUser and Provision.
const MinPasswordLength = 8

// Service is the authentication and account service.
type Service struct {
	users       UserStore
	tokens      TokenIssuer
	revocations TokenRevoker
	limiter     LoginLimiter
	tx          TxRunner
	feed        *changefeed.Feed
	logger      *slog.Logger
	metrics     *Metrics
	bcryptCost  int
	dummyHash   []byte
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// New creates the service. feed must already track identity.EntityType for
// account changes to be audited.
func New(users UserStore, tokens TokenIssuer, revocations TokenRevoker, limiter LoginLimiter, tx TxRunner, feed *changefeed.Feed, opts ...Option) *Service {
	s := &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		limiter:     limiter,
		tx:          tx,
		feed:        feed,
		logger:      slog.New(slog.DiscardHandler),
		bcryptCost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against when the username is unknown so both paths cost one bcrypt run.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gestionale-dummy-password"), s.bcryptCost)
	return s
}

// RetryAfterError carries the wait before the next login attempt is allowed.
type RetryAfterError struct {
	Seconds int
}

func (e *RetryAfterError) Error() string {
	return "login temporarily blocked"
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *identity.User
}

// Login checks credentials for a request from the client IP in ctx.
//
// Unknown usernames, wrong passwords and inactive accounts all answer with
// the same unauthorized error and count as failures. Once the limit is
// reached the error has code rate_limited and wraps a RetryAfterError.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ip := requestcontext.ClientIP(ctx)
	check, err := s.limiter.Check(ctx, ip)
	if err != nil {
		s.observeLogin(outcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check login rate limit")
	}
	if !check.Allowed {
		s.observeLogin(outcomeBlocked)
		s.logger.WarnContext(ctx, "login blocked by rate limit",
			"client_ip", ip,
			"retry_after", check.RetryAfter,
		)
		return nil, dErrors.Wrap(&RetryAfterError{Seconds: check.RetryAfter}, dErrors.CodeRateLimited,
			"too many failed login attempts, try again later")
	}

	user, err := s.authenticate(ctx, strings.TrimSpace(username), password)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.observeLogin(outcomeError)
			return nil, err
		}
		s.observeLogin(outcomeFailed)
		if rerr := s.limiter.RecordFailure(ctx, ip); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to record login failure", "client_ip", ip, "error", rerr)
		}
		s.logger.InfoContext(ctx, "login failed", "username", username, "client_ip", ip)
		return nil, err
	}

	if err := s.limiter.Clear(ctx, ip); err != nil {
		s.logger.WarnContext(ctx, "failed to clear login failures", "client_ip", ip, "error", err)
	}
	tok, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.observeLogin(outcomeError)
		return nil, err
	}
	s.observeLogin(outcomeOK)
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"role", user.Role.String(),
		"client_ip", ip,
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &LoginResult{AccessToken: tok.Value, ExpiresAt: tok.ExpiresAt, User: user}, nil
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

func (s *Service) authenticate(ctx context.Context, username, password string) (*identity.User, error) {
	if username == "" || password == "" {
		return nil, errInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, sentinel.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	if !user.Active {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// Logout revokes tok until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, tok requestcontext.Token) error {
	if tok.ID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	ttl, ok := revocation.Window(tok.ExpiresAt, requestcontext.Now(ctx))
	if !ok {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, tok.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}

// Me returns the account of the authenticated actor.
func (s *Service) Me(ctx context.Context, actor *identity.Actor) (*identity.User, error) {
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	return user, nil
}

// ResolveActor loads the current identity of userID for the authentication
// middleware. Unknown and inactive accounts resolve to nil.
func (s *Service) ResolveActor(ctx context.Context, userID id.UserID) (*identity.Actor, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user")
	}
	if !user.Active {
		return nil, nil
	}
	return user.Actor(), nil
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncLogin(outcome)
	}
}
