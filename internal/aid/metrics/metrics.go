package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	DisbursementsTotal *prometheus.CounterVec
	MatchDuration      prometheus.Histogram
	PoolAvailable      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aidpool_request_submissions_total",
			Help: "Aid request submissions by precheck outcome",
		}, []string{"outcome"}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aidpool_request_transitions_total",
			Help: "Request state transitions by action and outcome",
		}, []string{"action", "outcome"}),
		DisbursementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aidpool_disbursements_total",
			Help: "Completed disbursements by request kind",
		}, []string{"kind"}),
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidpool_match_duration_seconds",
			Help:    "Latency of donation matching attempts",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PoolAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aidpool_pool_available_balance",
			Help: "Financial pool balance available for reservation",
		}),
	}
}

func (m *Metrics) RecordSubmission(outcome string) {
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTransition(action, outcome string) {
	m.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordDisbursement(kind string) {
	m.DisbursementsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetPoolAvailable(balance int64) {
	m.PoolAvailable.Set(float64(balance))
}
