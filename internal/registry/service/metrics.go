package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK     = "ok"
	outcomeDenied = "denied"
	outcomeError  = "error"
)

// Metrics counts registry operations.
type Metrics struct {
	Operations *prometheus.CounterVec
}

// NewMetrics creates and registers the registry collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_registry_operations_total",
			Help: "Registry operations by entity type, operation and outcome",
		}, []string{"entity_type", "operation", "outcome"}),
	}
}

func (m *Metrics) IncOperation(entityType, op, outcome string) {
	m.Operations.WithLabelValues(entityType, op, outcome).Inc()
}
