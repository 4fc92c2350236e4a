package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	"gestionale/pkg/requestcontext"
)

func TestRequireAdmin(t *testing.T) {
	mw := RequireAdmin("/auth/login", slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name  string
		actor *identity.Actor
		want  int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"admin", &identity.Actor{UserID: id.NewUserID(), Role: identity.RoleAdmin}, http.StatusNoContent},
		{"technician", &identity.Actor{UserID: id.NewUserID(), Role: identity.RoleTechnician}, http.StatusForbidden},
		{"commercial", &identity.Actor{UserID: id.NewUserID(), Role: identity.RoleCommercial}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/audit-log", nil)
			if tt.actor != nil {
				req = req.WithContext(requestcontext.WithActor(req.Context(), tt.actor))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
