package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gestionale/internal/identity"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gestionale_authz_decisions_total",
	Help: "Permission decisions by role, operation and outcome",
}, []string{"role", "operation", "outcome"})

func observe(role identity.Role, op Operation, d Decision) {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	// Unknown roles are bucketed to keep label cardinality bounded.
	label := role.String()
	if role != identity.RoleUnauthenticated && !role.Known() {
		label = "unknown"
	}
	decisionsTotal.WithLabelValues(label, string(op), outcome).Inc()
}
