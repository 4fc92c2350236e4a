package identity

import id "gestionale/pkg/domain"

// Actor is the identity attributed to a request or a mutation.
// A nil *Actor is an anonymous caller.
type Actor struct {
	UserID   id.UserID
	Username string
	Role     Role
}

// Authenticated reports whether a is a resolved account. Safe on nil.
func (a *Actor) Authenticated() bool {
	return a != nil && !a.UserID.IsNil()
}

// RoleOf returns the role to evaluate for a, RoleUnauthenticated for nil.
func RoleOf(a *Actor) Role {
	if !a.Authenticated() {
		return RoleUnauthenticated
	}
	return a.Role
}
