package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for badge anchoring.
type Metrics struct {
	// Issuance attempts by outcome: created, duplicate, rejected, error
	IssuanceOutcome *prometheus.CounterVec

	// Ledger call latency by operation
	LedgerLatency *prometheus.HistogramVec

	// Nonce found by each derivation; low values mean a long search
	DerivationNonce prometheus.Histogram

	AuditFailures prometheus.Counter
}

// New registers badge metrics on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuanceOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openbadges_issuance_total",
			Help: "Credential issuance attempts by outcome",
		}, []string{"outcome"}),

		LedgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openbadges_ledger_duration_seconds",
			Help:    "Duration of ledger calls by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		DerivationNonce: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "openbadges_derivation_nonce",
			Help:    "Nonce selected by address derivation",
			Buckets: []float64{200, 240, 250, 253, 254, 255},
		}),

		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "openbadges_audit_failures_total",
			Help: "Audit events that could not be published after a committed write",
		}),
	}
}

func (m *Metrics) IncrementIssuance(outcome string) {
	if m != nil {
		m.IssuanceOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveLedgerLatency(operation string, d time.Duration) {
	if m != nil {
		m.LedgerLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveNonce(nonce byte) {
	if m != nil {
		m.DerivationNonce.Observe(float64(nonce))
	}
}

func (m *Metrics) IncrementAuditFailures() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}
