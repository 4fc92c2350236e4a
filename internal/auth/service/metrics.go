package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeBlocked = "blocked"
	outcomeError   = "error"
)

// Metrics holds the authentication collectors.
type Metrics struct {
	Logins      *prometheus.CounterVec
	UserChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		UserChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_auth_user_changes_total",
			Help: "Account administration operations by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncUserChange(kind string) {
	m.UserChanges.WithLabelValues(kind).Inc()
}
