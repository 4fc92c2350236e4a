// Package handler serves the administrative audit-log listing.
package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/audit"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// Lister reads the audit trail.
type Lister interface {
	List(ctx context.Context, q audit.Query) (audit.Page, error)
}

// Handler exposes GET /admin/audit-log. Callers mount it behind the admin guard.
type Handler struct {
	audit  Lister
	logger *slog.Logger
}

func New(lister Lister, logger *slog.Logger) *Handler {
	return &Handler{audit: lister, logger: logger}
}

// RegisterAdmin mounts the audit log on r, which must be guarded by the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/audit-log", h.handleList)
}

// EntryResponse is one audit entry as served to clients.
type EntryResponse struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActorID    *string        `json:"actor_id"`
	Action     audit.Action   `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    *audit.Details `json:"details,omitempty"`
}

// ListResponse is a page of entries.
type ListResponse struct {
	Entries  []EntryResponse `json:"entries"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	q, page, err := ParseQuery(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit-log query", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.audit.List(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries", "error", err, "request_id", requestID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries"))
		return
	}

	resp := ListResponse{
		Entries:  make([]EntryResponse, 0, len(result.Entries)),
		Total:    result.Total,
		Page:     page,
		PageSize: q.Limit,
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, toResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func toResponse(e audit.Entry) EntryResponse {
	out := EntryResponse{
		ID:         e.ID.String(),
		Timestamp:  e.Timestamp,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		RequestID:  e.RequestID,
		Details:    e.Details,
	}
	if e.HasActor() {
		actor := e.ActorID.String()
		out.ActorID = &actor
	}
	return out
}

// maxPage keeps the computed offset within int for any page size.
const maxPage = math.MaxInt / audit.MaxPageSize

// ParseQuery converts URL parameters into a normalized audit query and the
// 1-based page number it represents.
func ParseQuery(v url.Values) (audit.Query, int, error) {
	q := audit.Query{
		EntityType: v.Get("entity_type"),
		EntityID:   v.Get("entity_id"),
	}

	if s := v.Get("actor_id"); s != "" {
		actorID, err := id.ParseUserID(s)
		if err != nil {
			return audit.Query{}, 0, err
		}
		q.ActorID = actorID
	}
	if s := v.Get("action"); s != "" {
		action, ok := audit.ParseAction(s)
		if !ok {
			return audit.Query{}, 0, dErrors.New(dErrors.CodeInvalidInput, "action must be create, update or delete")
		}
		q.Action = action
	}

	var err error
	if q.From, err = parseTime(v, "from"); err != nil {
		return audit.Query{}, 0, err
	}
	if q.To, err = parseTime(v, "to"); err != nil {
		return audit.Query{}, 0, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return audit.Query{}, 0, dErrors.New(dErrors.CodeInvalidInput, "from must be before to")
	}

	switch order := audit.Order(v.Get("order")); order {
	case "", audit.OrderDesc:
		q.Order = audit.OrderDesc
	case audit.OrderAsc:
		q.Order = audit.OrderAsc
	default:
		return audit.Query{}, 0, dErrors.New(dErrors.CodeInvalidInput, "order must be asc or desc")
	}

	page, err := parsePositive(v, "page", 1)
	if err != nil {
		return audit.Query{}, 0, err
	}
	if page > maxPage {
		return audit.Query{}, 0, dErrors.New(dErrors.CodeInvalidInput, "page is out of range")
	}
	size, err := parsePositive(v, "page_size", audit.DefaultPageSize)
	if err != nil {
		return audit.Query{}, 0, err
	}
	q.Limit = size
	q = q.Normalize()
	q.Offset = (page - 1) * q.Limit
	return q, page, nil
}

func parseTime(v url.Values, key string) (time.Time, error) {
	s := v.Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, key+" must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func parsePositive(v url.Values, key string, def int) (int, error) {
	s := v.Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, key+" must be a positive integer")
	}
	return n, nil
}
