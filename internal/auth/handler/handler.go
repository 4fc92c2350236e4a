// Package handler exposes login, logout and account administration over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gestionale/internal/auth/service"
	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// Service is the auth surface the handler needs.
type Service interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, tok requestcontext.Token) error
	Me(ctx context.Context, actor *identity.Actor) (*identity.User, error)
	ChangeOwnPassword(ctx context.Context, actor *identity.Actor, current, next string) error
	CreateUser(ctx context.Context, actor *identity.Actor, cmd service.CreateUserCommand) (*identity.User, error)
	ListUsers(ctx context.Context, actor *identity.Actor) ([]*identity.User, error)
	ChangeRole(ctx context.Context, actor *identity.Actor, userID id.UserID, role identity.Role) (*identity.User, error)
	Deactivate(ctx context.Context, actor *identity.Actor, userID id.UserID) (*identity.User, error)
}

type Handler struct {
	svc      Service
	loginURL string
	logger   *slog.Logger
}

func New(svc Service, loginURL string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, loginURL: loginURL, logger: logger}
}

// Register mounts the session routes. Login is public; logout and me need a
// bearer token and answer 401 without one.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/me", h.handleMe)
	r.Put("/auth/me/password", h.handleChangeOwnPassword)
}

// RegisterAdmin mounts account administration. The caller is expected to
// guard r with the admin middleware; the service checks the role again.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/users", h.handleListUsers)
	r.Post("/admin/users", h.handleCreateUser)
	r.Put("/admin/users/{id}/role", h.handleChangeRole)
	r.Post("/admin/users/{id}/deactivate", h.handleDeactivate)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
		Role:        string(u.Role),
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		var retry *service.RetryAfterError
		if errors.As(err, &retry) {
			httputil.WriteRateLimited(w, retry.Seconds, dErrors.MessageOf(err))
			return
		}
		h.writeError(ctx, w, "login", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        toUserResponse(res.User),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, ok := requestcontext.AccessToken(ctx)
	if !ok {
		httputil.WriteUnauthenticated(w, h.loginURL, "authentication required")
		return
	}
	if err := h.svc.Logout(ctx, tok); err != nil {
		h.writeError(ctx, w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.svc.Me(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.writeError(ctx, w, "me", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ChangePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.ChangeOwnPassword(ctx, requestcontext.Actor(ctx), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(ctx, w, "change_password", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.svc.ListUsers(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.writeError(ctx, w, "list_users", err)
		return
	}
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := parseRole(req.Role, true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.svc.CreateUser(ctx, requestcontext.Actor(ctx), service.CreateUserCommand{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      role,
	})
	if err != nil {
		h.writeError(ctx, w, "create_user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := userIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req ChangeRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := parseRole(req.Role, false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.svc.ChangeRole(ctx, requestcontext.Actor(ctx), userID, role)
	if err != nil {
		h.writeError(ctx, w, "change_role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := userIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.svc.Deactivate(ctx, requestcontext.Actor(ctx), userID)
	if err != nil {
		h.writeError(ctx, w, "deactivate_user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func userIDParam(r *http.Request) (id.UserID, error) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
	}
	return userID, nil
}

// parseRole accepts current and legacy role names. An empty value is allowed
// only when the default role applies.
func parseRole(raw string, allowEmpty bool) (identity.Role, error) {
	if raw == "" && allowEmpty {
		return identity.RoleUnauthenticated, nil
	}
	role, ok := identity.ParseRole(raw)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "role must be admin, technician or commercial")
	}
	return role, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeUnauthorized) && op != "login" {
		httputil.WriteUnauthenticated(w, h.loginURL, dErrors.MessageOf(err))
		return
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "auth request failed",
			"operation", op,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
