package testutil

import (
	"context"
	"net/http"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	"gestionale/pkg/requestcontext"
)

// RequestID is the request id carried by Context.
const RequestID = "test-request"

// Context returns a background context carrying RequestID.
func Context() context.Context {
	return requestcontext.WithRequestID(context.Background(), RequestID)
}

// NewActor returns an authenticated actor with a fresh id and role.
func NewActor(role identity.Role) *identity.Actor {
	return &identity.Actor{UserID: id.NewUserID(), Username: string(role), Role: role}
}

// WithActor attaches actor to the request the way the authentication
// middleware does. A nil actor leaves the request anonymous.
func WithActor(req *http.Request, actor *identity.Actor) *http.Request {
	if actor == nil {
		return req
	}
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}
