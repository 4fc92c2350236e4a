// Package auth resolves bearer tokens into actors and guards routes that need one.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// Claims are the token claims the middleware relies on.
type Claims struct {
	UserID    id.UserID
	JTI       string // token id for revocation
	ExpiresAt time.Time
}

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// TokenRevocationChecker reports whether a token id was revoked by logout.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// ActorResolver loads the current identity for a user. It returns a nil actor
// for unknown or deactivated accounts. The role is read fresh on every request
// so a role change applies immediately.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID id.UserID) (*identity.Actor, error)
}

// Authenticate attaches the actor for a valid bearer token. Requests without
// an Authorization header pass through anonymously; a presented token that
// fails validation is rejected with a login redirect.
func Authenticate(validator TokenValidator, revocations TokenRevocationChecker, resolver ActorResolver, loginURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header", "request_id", requestID)
				httputil.WriteUnauthenticated(w, loginURL, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token", "error", err, "request_id", requestID)
				httputil.WriteUnauthenticated(w, loginURL, "Invalid or expired token")
				return
			}

			if revocations != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti", "request_id", requestID)
					httputil.WriteUnauthenticated(w, loginURL, "Invalid or expired token")
					return
				}
				revoked, err := revocations.IsTokenRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation", "error", err, "request_id", requestID)
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
						Error:            "internal_error",
						ErrorDescription: "Failed to validate token",
					})
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked", "jti", claims.JTI, "request_id", requestID)
					httputil.WriteUnauthenticated(w, loginURL, "Token has been revoked")
					return
				}
			}

			actor, err := resolver.ResolveActor(ctx, claims.UserID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve actor", "error", err, "user_id", claims.UserID, "request_id", requestID)
				httputil.WriteError(w, err)
				return
			}
			if actor == nil {
				logger.WarnContext(ctx, "unauthorized access - inactive or unknown account", "user_id", claims.UserID, "request_id", requestID)
				httputil.WriteUnauthenticated(w, loginURL, "Account is not active")
				return
			}

			ctx = requestcontext.WithActor(ctx, actor)
			ctx = requestcontext.WithAccessToken(ctx, requestcontext.Token{ID: claims.JTI, ExpiresAt: claims.ExpiresAt})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActor rejects anonymous requests with 401 and a pointer to loginURL.
func RequireActor(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requestcontext.Actor(r.Context()).Authenticated() {
				httputil.WriteUnauthenticated(w, loginURL, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
