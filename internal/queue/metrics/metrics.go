package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the withdrawal queue.
type Metrics struct {
	// Requests by path: "sync" or "bridge"
	RequestsTotal *prometheus.CounterVec

	// Finalize outcomes: "completed", "already_completed",
	// "payload_mismatch", "insufficient_custody", "dispatch_failed"
	FinalizeOutcomes *prometheus.CounterVec

	// End-to-end finalize latency including bridge dispatch
	FinalizeLatency prometheus.Histogram

	// Assets currently held in queue custody
	CustodySats prometheus.Gauge
}

// New creates a Metrics instance with all queue metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "satvault_queue_requests_total",
			Help: "Total withdrawal requests by path",
		}, []string{"path"}),

		FinalizeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "satvault_queue_finalize_outcomes_total",
			Help: "Total finalize attempts by outcome",
		}, []string{"outcome"}),

		FinalizeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "satvault_queue_finalize_duration_seconds",
			Help:    "Duration of finalize including settlement dispatch",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		CustodySats: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "satvault_queue_custody_sats",
			Help: "Assets held in queue custody, in satoshi",
		}),
	}
}

// IncrementRequests records a withdrawal request.
func (m *Metrics) IncrementRequests(path string) {
	if m != nil {
		m.RequestsTotal.WithLabelValues(path).Inc()
	}
}

// ObserveFinalize records a finalize attempt.
func (m *Metrics) ObserveFinalize(outcome string, d time.Duration) {
	if m != nil {
		m.FinalizeOutcomes.WithLabelValues(outcome).Inc()
		m.FinalizeLatency.Observe(d.Seconds())
	}
}

// SetCustody records the current custody balance.
func (m *Metrics) SetCustody(sats uint64) {
	if m != nil {
		m.CustodySats.Set(float64(sats))
	}
}
