package admin

import (
	"log/slog"
	"net/http"

	"gestionale/internal/authz"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// RequireAdmin lets only the Admin role through. Anonymous callers get the
// login redirect; other roles get 403.
func RequireAdmin(loginURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			if err := authz.AuthorizeAdmin(actor); err != nil {
				if !actor.Authenticated() {
					httputil.WriteUnauthenticated(w, loginURL, "Authentication required")
					return
				}
				logger.WarnContext(ctx, "admin route denied",
					"user_id", actor.UserID,
					"role", actor.Role.String(),
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
