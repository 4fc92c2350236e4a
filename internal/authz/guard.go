package authz

import (
	"gestionale/internal/identity"
	dErrors "gestionale/pkg/domain-errors"
)

// Authorize evaluates the actor's current role and converts a denial into a
// coded error: unauthorized when the caller must log in, forbidden otherwise.
// A nil actor is anonymous.
func Authorize(actor *identity.Actor, op Operation, grants ...Grant) error {
	role := identity.RoleOf(actor)
	d := Evaluate(role, op, grants...)
	observe(role, op, d)
	if d.Allowed {
		return nil
	}
	if d.RedirectToLogin {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return dErrors.New(dErrors.CodeForbidden, "operation not permitted for role")
}

// opAdminister labels admin-only checks in metrics; it is never a grantable operation.
const opAdminister Operation = "administer"

// AuthorizeAdmin guards administrative surfaces (user management, the audit
// log) that no grant can open to other roles.
func AuthorizeAdmin(actor *identity.Actor) error {
	role := identity.RoleOf(actor)
	var d Decision
	switch {
	case role == identity.RoleUnauthenticated:
		d = Decision{RedirectToLogin: true, Reason: ReasonUnauthenticated}
	case role == identity.RoleAdmin:
		d = Decision{Allowed: true, Reason: ReasonAdmin}
	case role.Known():
		d = Decision{Reason: ReasonNoGrant}
	default:
		d = Decision{Reason: ReasonUnknownRole}
	}
	observe(role, opAdminister, d)
	if d.Allowed {
		return nil
	}
	if d.RedirectToLogin {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return dErrors.New(dErrors.CodeForbidden, "administrator role required")
}
