// Package authz is the single permission evaluator consulted by every entry point
// before it reads or mutates a record.
//
// Evaluate is a pure function of role, operation and the grants the call site
// declares. Decisions are never cached: callers evaluate again on every request
// because an account's role can change between requests.
package authz

import "gestionale/internal/identity"

// Operation is the kind of access requested.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) valid() bool {
	switch o {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// Reason explains a decision. It is stable and safe to log or count.
type Reason string

const (
	ReasonAdmin           Reason = "admin"
	ReasonReadOnlyRole    Reason = "read_only_role"
	ReasonExplicitGrant   Reason = "explicit_grant"
	ReasonNoGrant         Reason = "no_grant"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonUnknownRole     Reason = "unknown_role"
	ReasonUnknownOp       Reason = "unknown_operation"
)

// Decision is the structured outcome of an evaluation. The evaluator never
// redirects or writes a response itself; RedirectToLogin tells the
// presentation layer to send the caller to the login entry point.
type Decision struct {
	Allowed         bool
	RedirectToLogin bool
	Reason          Reason
}

// Grant lets a call site open operations to the Commercial role. Grants are
// the only way Commercial gains access; they never widen Technician or
// anonymous access.
type Grant struct {
	Role       identity.Role
	Operations []Operation
}

// GrantCommercial is shorthand for a Commercial grant on ops.
func GrantCommercial(ops ...Operation) Grant {
	return Grant{Role: identity.RoleCommercial, Operations: ops}
}

// Evaluate decides whether role may perform op. Anything not explicitly
// allowed is denied, including unknown roles and unknown operations.
func Evaluate(role identity.Role, op Operation, grants ...Grant) Decision {
	if role == identity.RoleUnauthenticated {
		return Decision{RedirectToLogin: true, Reason: ReasonUnauthenticated}
	}
	if !op.valid() {
		return Decision{Reason: ReasonUnknownOp}
	}

	switch role {
	case identity.RoleAdmin:
		return Decision{Allowed: true, Reason: ReasonAdmin}
	case identity.RoleTechnician:
		if op == OpRead {
			return Decision{Allowed: true, Reason: ReasonReadOnlyRole}
		}
		return Decision{Reason: ReasonReadOnlyRole}
	case identity.RoleCommercial:
		if granted(role, op, grants) {
			return Decision{Allowed: true, Reason: ReasonExplicitGrant}
		}
		return Decision{Reason: ReasonNoGrant}
	default:
		return Decision{Reason: ReasonUnknownRole}
	}
}

func granted(role identity.Role, op Operation, grants []Grant) bool {
	for _, g := range grants {
		if g.Role != role {
			continue
		}
		for _, allowed := range g.Operations {
			if allowed == op {
				return true
			}
		}
	}
	return false
}
