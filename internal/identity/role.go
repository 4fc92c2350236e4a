package identity

import "strings"

// Role is the closed set of roles used for every authorization decision.
// Values outside the set can still appear (corrupt rows, forged tokens) and
// must be treated as unknown, never rejected with an error.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleCommercial Role = "commercial"

	// RoleUnauthenticated is the role of an anonymous caller.
	RoleUnauthenticated Role = ""
)

// DefaultRole is assigned to accounts provisioned without an explicit role.
const DefaultRole = RoleTechnician

var legacyRoleNames = map[string]Role{
	"admin":       RoleAdmin,
	"technician":  RoleTechnician,
	"tecnico":     RoleTechnician,
	"commercial":  RoleCommercial,
	"commerciale": RoleCommercial,
}

// ParseRole maps a stored or submitted role name to a Role. Legacy names
// (tecnico, commerciale) and any letter case are accepted. ok is false for
// values outside the set; the returned Role then carries the raw value and
// is not Known.
func ParseRole(s string) (role Role, ok bool) {
	if r, found := legacyRoleNames[strings.ToLower(strings.TrimSpace(s))]; found {
		return r, true
	}
	return Role(s), false
}

// Known reports whether r is Admin, Technician or Commercial.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleTechnician, RoleCommercial:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	if r == RoleUnauthenticated {
		return "unauthenticated"
	}
	return string(r)
}
