package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HealthMetrics tracks the monitor, supervisor and watchdog loops.
type HealthMetrics struct {
	alerts        *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	checkHealthy  *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
	state         *prometheus.GaugeVec
	restarts      *prometheus.CounterVec
	validDatasets prometheus.Gauge
	datasetAge    *prometheus.GaugeVec
	shutdowns     prometheus.Counter
}

// NewHealthMetrics creates and registers loop metrics with the provided registry.
func NewHealthMetrics(namespace string, registry *prometheus.Registry) *HealthMetrics {
	hm := &HealthMetrics{
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "emitted_total",
				Help:      "Alerts emitted by type and severity",
			},
			[]string{"type", "severity"},
		),

		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_cycles_total",
				Help:      "Periodic loop iterations by loop and result",
			},
			[]string{"loop", "result"},
		),

		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "loop_cycle_duration_seconds",
				Help:      "Duration of one periodic loop iteration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"loop"},
		),

		checkHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_healthy",
				Help:      "Result of the last run of each health check (1=healthy)",
			},
			[]string{"check"},
		),

		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Duration of health checks",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"check"},
		),

		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_state",
				Help:      "Current state of the supervisor and watchdog (1=current)",
			},
			[]string{"component", "state"},
		),

		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "restart_attempts_total",
				Help:      "Restart attempts by strategy and result",
			},
			[]string{"strategy", "result"},
		),

		validDatasets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "valid_datasets",
			Help:      "Number of datasets that passed the last validation",
		}),

		datasetAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "watchdog",
				Name:      "dataset_age_seconds",
				Help:      "Age of each dataset at the last check (-1 when missing)",
			},
			[]string{"dataset"},
		),

		shutdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "shutdowns_total",
			Help:      "Collector shutdowns triggered by chronic dataset shortfall",
		}),
	}

	registry.MustRegister(
		hm.alerts,
		hm.cycles,
		hm.cycleDuration,
		hm.checkHealthy,
		hm.checkDuration,
		hm.state,
		hm.restarts,
		hm.validDatasets,
		hm.datasetAge,
		hm.shutdowns,
	)

	return hm
}
