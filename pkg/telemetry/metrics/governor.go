package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GovernorMetrics tracks admission decisions and spend.
//
// Metrics:
//   - warden_governor_decisions_total: admission decisions by source and result
//   - warden_governor_requests_total: completed calls by source and outcome
//   - warden_governor_spend_usd_total: recorded spend by source
//   - warden_governor_cost_per_call_usd: cost distribution per call
//   - warden_governor_daily_cost_usd: today's ledger per source
//   - warden_governor_daily_total_usd: today's ledger total
//   - warden_governor_usage_ratio: total spend over the global limit
//   - warden_governor_emergency_stop: 1 while the kill switch is engaged
//   - warden_governor_reservations: outstanding reservations
//   - warden_governor_daily_resets_total: ledger resets
type GovernorMetrics struct {
	decisions    *prometheus.CounterVec
	requests     *prometheus.CounterVec
	spend        *prometheus.CounterVec
	costPerCall  *prometheus.HistogramVec
	dailyCost    *prometheus.GaugeVec
	dailyTotal   prometheus.Gauge
	usage        prometheus.Gauge
	emergency    prometheus.Gauge
	reservations prometheus.Gauge
	resets       prometheus.Counter
}

// NewGovernorMetrics creates and registers governor metrics with the provided registry.
func NewGovernorMetrics(namespace string, registry *prometheus.Registry) *GovernorMetrics {
	const subsystem = "governor"

	gm := &GovernorMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "decisions_total",
				Help:      "Admission decisions by source and result",
			},
			[]string{"source", "result"},
		),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Completed upstream calls by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		spend: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "spend_usd_total",
				Help:      "Recorded spend in USD by source",
			},
			[]string{"source"},
		),

		costPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cost_per_call_usd",
				Help:      "Cost distribution per recorded call in USD",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"source"},
		),

		dailyCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "daily_cost_usd",
				Help:      "Spend recorded today in USD by source",
			},
			[]string{"source"},
		),

		dailyTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "daily_total_usd",
			Help:      "Spend recorded today in USD across all sources",
		}),

		usage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "usage_ratio",
			Help:      "Today's spend divided by the global daily limit",
		}),

		emergency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emergency_stop",
			Help:      "1 while the emergency stop is engaged",
		}),

		reservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reservations",
			Help:      "Outstanding reservations",
		}),

		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "daily_resets_total",
			Help:      "Number of daily ledger resets",
		}),
	}

	registry.MustRegister(
		gm.decisions,
		gm.requests,
		gm.spend,
		gm.costPerCall,
		gm.dailyCost,
		gm.dailyTotal,
		gm.usage,
		gm.emergency,
		gm.reservations,
		gm.resets,
	)

	return gm
}

// RecordOutcome records a completed call. Spend only counts for successful
// calls with a positive cost, mirroring the ledger.
func (gm *GovernorMetrics) RecordOutcome(source string, success bool, cost float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	gm.requests.WithLabelValues(source, outcome).Inc()

	if !success || cost <= 0 {
		return
	}
	gm.spend.WithLabelValues(source).Add(cost)
	gm.costPerCall.WithLabelValues(source).Observe(cost)
}
