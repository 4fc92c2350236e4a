package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the audit trail.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	Suppressed      *prometheus.CounterVec
	WriteFailures   prometheus.Counter
	AppendDuration  prometheus.Histogram
	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
}

// NewMetrics creates and registers the audit collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_audit_entries_recorded_total",
			Help: "Audit entries appended, by action",
		}, []string{"action"}),
		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_audit_entries_suppressed_total",
			Help: "Changes not recorded, by suppression reason",
		}, []string{"reason"}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_audit_write_failures_total",
			Help: "Audit appends rejected by the store",
		}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gestionale_audit_append_duration_seconds",
			Help:    "Latency of successful audit appends",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_audit_outbox_published_total",
			Help: "Audit entries exported from the outbox",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_audit_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
	}
}

func (m *Metrics) IncRecorded(action Action) {
	m.Recorded.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncSuppressed(reason string) {
	m.Suppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncWriteFailures() {
	m.WriteFailures.Inc()
}

func (m *Metrics) ObserveAppendDuration(seconds float64) {
	m.AppendDuration.Observe(seconds)
}

func (m *Metrics) AddOutboxPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncOutboxFailures() {
	m.OutboxFailures.Inc()
}
