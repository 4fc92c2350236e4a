package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LoginFailures prometheus.Counter
	LoginBlocked  prometheus.Counter
	Degraded      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_ratelimit_login_failures_recorded_total",
			Help: "Failed logins recorded for rate limiting",
		}),
		LoginBlocked: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_ratelimit_login_blocked_total",
			Help: "Login attempts rejected by the rate limiter",
		}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "gestionale_ratelimit_degraded",
			Help: "1 while the limiter runs on its in-memory fallback",
		}),
	}
}

func (m *Metrics) IncFailures() {
	m.LoginFailures.Inc()
}

func (m *Metrics) IncBlocked() {
	m.LoginBlocked.Inc()
}

func (m *Metrics) SetDegraded(on bool) {
	if on {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
