// Package handler exposes the customer and supplier registries over HTTP.
package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gestionale/internal/identity"
	"gestionale/internal/registry/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// Service is the registry surface the handler needs.
type Service[T any] interface {
	EntityType() string
	Create(ctx context.Context, actor *identity.Actor, rec T) (T, error)
	Get(ctx context.Context, actor *identity.Actor, code string) (T, error)
	Update(ctx context.Context, actor *identity.Actor, code string, rec T) (T, error)
	Delete(ctx context.Context, actor *identity.Actor, code string) error
	List(ctx context.Context, actor *identity.Actor, q models.ListQuery) (models.ListPage[T], error)
}

// Handler serves one registry under a base path such as /customers.
type Handler[T any] struct {
	base      string
	svc       Service[T]
	newRecord func() T
	loginURL  string
	logger    *slog.Logger
}

// NewCustomers serves the customer registry at /customers.
func NewCustomers(svc Service[*models.Customer], loginURL string, logger *slog.Logger) *Handler[*models.Customer] {
	return &Handler[*models.Customer]{
		base:      "/customers",
		svc:       svc,
		newRecord: func() *models.Customer { return &models.Customer{} },
		loginURL:  loginURL,
		logger:    logger,
	}
}

// NewSuppliers serves the supplier registry at /suppliers.
func NewSuppliers(svc Service[*models.Supplier], loginURL string, logger *slog.Logger) *Handler[*models.Supplier] {
	return &Handler[*models.Supplier]{
		base:      "/suppliers",
		svc:       svc,
		newRecord: func() *models.Supplier { return &models.Supplier{} },
		loginURL:  loginURL,
		logger:    logger,
	}
}

// Register mounts the registry routes on r. Authorization happens in the
// service, so the routes only need the authenticated actor in context.
func (h *Handler[T]) Register(r chi.Router) {
	r.Route(h.base, func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{code}", h.handleGet)
		r.Put("/{code}", h.handleUpdate)
		r.Delete("/{code}", h.handleDelete)
	})
}

// ListResponse is one page of records.
type ListResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (h *Handler[T]) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, page, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.svc.List(ctx, requestcontext.Actor(ctx), q)
	if err != nil {
		h.writeError(ctx, w, "list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse[T]{
		Items:    result.Items,
		Total:    result.Total,
		Page:     page,
		PageSize: q.Limit,
	})
}

func (h *Handler[T]) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := h.newRecord()
	if err := httputil.DecodeJSON(r, rec); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Create(ctx, requestcontext.Actor(ctx), rec)
	if err != nil {
		h.writeError(ctx, w, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler[T]) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.svc.Get(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler[T]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := h.newRecord()
	if err := httputil.DecodeJSON(r, rec); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.svc.Update(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"), rec)
	if err != nil {
		h.writeError(ctx, w, "update", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler[T]) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.Delete(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code")); err != nil {
		h.writeError(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError answers unauthenticated callers with a login redirect and every
// other failure with its mapped status.
func (h *Handler[T]) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		httputil.WriteUnauthenticated(w, h.loginURL, "Authentication required")
		return
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registry request failed",
			"entity_type", h.svc.EntityType(),
			"operation", op,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func parseListQuery(r *http.Request) (models.ListQuery, int, error) {
	v := r.URL.Query()
	page, err := positive(v.Get("page"), 1, "page")
	if err != nil {
		return models.ListQuery{}, 0, err
	}
	if page > math.MaxInt/models.MaxPageSize {
		return models.ListQuery{}, 0, dErrors.New(dErrors.CodeInvalidInput, "page is out of range")
	}
	size, err := positive(v.Get("page_size"), models.DefaultPageSize, "page_size")
	if err != nil {
		return models.ListQuery{}, 0, err
	}
	q := models.ListQuery{Search: v.Get("search"), Limit: size}.Normalize()
	q.Offset = (page - 1) * q.Limit
	return q, page, nil
}

func positive(s string, def int, name string) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, name+" must be a positive integer")
	}
	return n, nil
}
