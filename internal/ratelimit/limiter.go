// Package ratelimit throttles failed logins per client IP over a sliding window.
//
// Failures are kept in Redis so every instance sees the same counts. When Redis
// keeps failing, a circuit breaker switches to a process-local store until
// Redis recovers.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"gestionale/pkg/platform/circuit"
	"gestionale/pkg/requestcontext"
)

const (
	DefaultMaxFailures = 5
	DefaultWindow      = 60 * time.Second
)

// Store records failure timestamps per key.
type Store interface {
	// Record adds a failure at "at" and forgets failures older than window.
	Record(ctx context.Context, key string, at time.Time, window time.Duration) error
	// Window returns the number of failures at or after since and the oldest of them.
	Window(ctx context.Context, key string, since time.Time) (count int, oldest time.Time, err error)
	Clear(ctx context.Context, key string) error
}

// Result is the outcome of a check. RetryAfter is in whole seconds and only
// set when the attempt is blocked.
type Result struct {
	Allowed    bool
	RetryAfter int
}

// Limiter decides whether a login attempt from an IP may proceed.
type Limiter struct {
	primary     Store
	fallback    Store
	breaker     *circuit.Breaker
	maxFailures int
	window      time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithFallback sets the store used while the primary store's circuit is open.
func WithFallback(store Store) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

// WithLimits overrides the failure budget and window.
func WithLimits(maxFailures int, window time.Duration) Option {
	return func(l *Limiter) {
		if maxFailures > 0 {
			l.maxFailures = maxFailures
		}
		if window > 0 {
			l.window = window
		}
	}
}

// New creates a Limiter over primary. Without WithFallback, primary errors
// are returned to the caller.
func New(primary Store, opts ...Option) *Limiter {
	l := &Limiter{
		primary:     primary,
		breaker:     circuit.New("login_ratelimit"),
		maxFailures: DefaultMaxFailures,
		window:      DefaultWindow,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(ip string) string { return "login_failures:" + ip }

// Check reports whether ip may attempt a login now.
func (l *Limiter) Check(ctx context.Context, ip string) (Result, error) {
	now := requestcontext.Now(ctx)
	var (
		count  int
		oldest time.Time
	)
	err := l.do(ctx, func(s Store) error {
		var err error
		count, oldest, err = s.Window(ctx, key(ip), now.Add(-l.window))
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if count < l.maxFailures {
		return Result{Allowed: true}, nil
	}
	if l.metrics != nil {
		l.metrics.IncBlocked()
	}
	return Result{RetryAfter: l.retryAfter(oldest, now)}, nil
}

// RecordFailure counts a failed login from ip.
func (l *Limiter) RecordFailure(ctx context.Context, ip string) error {
	now := requestcontext.Now(ctx)
	if l.metrics != nil {
		l.metrics.IncFailures()
	}
	return l.do(ctx, func(s Store) error {
		return s.Record(ctx, key(ip), now, l.window)
	})
}

// Clear forgets ip's failures after a successful login.
func (l *Limiter) Clear(ctx context.Context, ip string) error {
	return l.do(ctx, func(s Store) error {
		return s.Clear(ctx, key(ip))
	})
}

// retryAfter is the time until the oldest failure leaves the window,
// rounded up and clamped to [1, window].
func (l *Limiter) retryAfter(oldest, now time.Time) int {
	remaining := oldest.Add(l.window).Sub(now)
	secs := int(math.Ceil(remaining.Seconds()))
	limit := int(l.window / time.Second)
	return max(1, min(secs, limit))
}

// do runs op against the primary store, or the fallback while the circuit is open.
func (l *Limiter) do(ctx context.Context, op func(Store) error) error {
	if l.fallback == nil {
		return op(l.primary)
	}
	if l.breaker.IsOpen() {
		// Probe the primary so the circuit can close once it recovers.
		if err := op(l.primary); err == nil {
			if usePrimary, change := l.breaker.RecordSuccess(); usePrimary {
				if change.Closed {
					l.logger.InfoContext(ctx, "login rate limit store recovered, leaving fallback")
					l.setDegraded(false)
				}
				return nil
			}
		} else {
			l.breaker.RecordFailure()
		}
		return op(l.fallback)
	}

	err := op(l.primary)
	if err == nil {
		l.breaker.RecordSuccess()
		return nil
	}
	if _, change := l.breaker.RecordFailure(); change.Opened {
		l.logger.WarnContext(ctx, "login rate limit store failing, switching to in-memory fallback", "error", err)
		l.setDegraded(true)
	} else {
		l.logger.WarnContext(ctx, "login rate limit store error, using fallback", "error", err)
	}
	return op(l.fallback)
}

func (l *Limiter) setDegraded(on bool) {
	if l.metrics != nil {
		l.metrics.SetDegraded(on)
	}
}
