// Package httptransport assembles the HTTP surface: middleware chain, health
// probes, metrics and the module routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gestionale/internal/platform/metrics"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/middleware/admin"
	authmw "gestionale/pkg/platform/middleware/auth"
	"gestionale/pkg/platform/middleware/metadata"
	"gestionale/pkg/platform/middleware/request"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// AdminRegistrar mounts routes that require the Admin role.
type AdminRegistrar interface {
	RegisterAdmin(r chi.Router)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config is everything the router needs.
type Config struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	LoginURL      string
	Authenticator func(http.Handler) http.Handler

	// Public routes, reachable anonymously (login) or self-checking (logout, me).
	Auth Registrar
	// Routes that need an authenticated actor; authorization happens in the services.
	Protected []Registrar
	// Routes reserved to administrators.
	Admin []AdminRegistrar

	Readiness map[string]ReadinessCheck
}

// NewRouter builds the application handler.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Time)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(request.Logger(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(cfg.Readiness, cfg.Logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(cfg.Authenticator)
		}
		if cfg.Auth != nil {
			cfg.Auth.Register(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireActor(cfg.LoginURL))
			for _, reg := range cfg.Protected {
				reg.Register(r)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(cfg.LoginURL, cfg.Logger))
			for _, reg := range cfg.Admin {
				reg.RegisterAdmin(r)
			}
		})
	})
	return r
}

func readyHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"checks": results})
	}
}
