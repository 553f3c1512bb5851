package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentceli/warden/pkg/config"
)

// Collector owns every Prometheus metric Warden exports. All methods are safe
// on a nil *Collector and are no-ops when metrics are disabled, so components
// can record unconditionally.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	governor *GovernorMetrics
	health   *HealthMetrics
	http     *HTTPMetrics
}

// NewCollector creates a collector registering into registry. If registry is
// nil a private registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		enabled:  config.IsEnabled(cfg.Enabled, config.DefaultMetricsEnabled),
		registry: registry,
		governor: NewGovernorMetrics(namespace, registry),
		health:   NewHealthMetrics(namespace, registry),
		http:     NewHTTPMetrics(namespace, registry),
	}
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// RecordDecision records one admission decision. result is "allowed" or the
// rejecting limit type.
func (c *Collector) RecordDecision(source, result string) {
	if !c.active() {
		return
	}
	c.governor.decisions.WithLabelValues(source, result).Inc()
}

// RecordOutcome records a completed call and its spend.
func (c *Collector) RecordOutcome(source string, success bool, cost float64) {
	if !c.active() {
		return
	}
	c.governor.RecordOutcome(source, success, cost)
}

// UpdateSpend sets the ledger gauges.
func (c *Collector) UpdateSpend(perSource map[string]float64, total, usage float64) {
	if !c.active() {
		return
	}
	for source, v := range perSource {
		c.governor.dailyCost.WithLabelValues(source).Set(v)
	}
	c.governor.dailyTotal.Set(total)
	c.governor.usage.Set(usage)
}

// SetEmergency sets the kill switch gauge.
func (c *Collector) SetEmergency(active bool) {
	if !c.active() {
		return
	}
	c.governor.emergency.Set(boolToFloat(active))
}

// SetReservations sets the number of outstanding reservations.
func (c *Collector) SetReservations(n int) {
	if !c.active() {
		return
	}
	c.governor.reservations.Set(float64(n))
}

// RecordDailyReset counts a ledger reset.
func (c *Collector) RecordDailyReset() {
	if !c.active() {
		return
	}
	c.governor.resets.Inc()
}

// RecordAlert counts an emitted alert.
func (c *Collector) RecordAlert(alertType, severity string) {
	if !c.active() {
		return
	}
	c.health.alerts.WithLabelValues(alertType, severity).Inc()
}

// RecordCycle counts one iteration of a periodic loop. result is "ok" or "error".
func (c *Collector) RecordCycle(loop, result string, duration time.Duration) {
	if !c.active() {
		return
	}
	c.health.cycles.WithLabelValues(loop, result).Inc()
	c.health.cycleDuration.WithLabelValues(loop).Observe(duration.Seconds())
}

// RecordCheck records one health check result.
func (c *Collector) RecordCheck(check string, healthy bool, duration time.Duration) {
	if !c.active() {
		return
	}
	c.health.checkHealthy.WithLabelValues(check).Set(boolToFloat(healthy))
	c.health.checkDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// SetState marks state as the current state of component (supervisor or
// watchdog). Every other state in states is cleared.
func (c *Collector) SetState(component, state string, states []string) {
	if !c.active() {
		return
	}
	for _, s := range states {
		c.health.state.WithLabelValues(component, s).Set(boolToFloat(s == state))
	}
}

// RecordRestart records one restart strategy attempt.
func (c *Collector) RecordRestart(strategy string, success bool) {
	if !c.active() {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	c.health.restarts.WithLabelValues(strategy, result).Inc()
}

// SetValidDatasets sets the number of valid datasets seen by the watchdog.
func (c *Collector) SetValidDatasets(n int) {
	if !c.active() {
		return
	}
	c.health.validDatasets.Set(float64(n))
}

// SetDatasetAge sets the age of one dataset. A negative age (missing file) is
// exported as -1.
func (c *Collector) SetDatasetAge(name string, age time.Duration) {
	if !c.active() {
		return
	}
	v := age.Seconds()
	if age < 0 {
		v = -1
	}
	c.health.datasetAge.WithLabelValues(name).Set(v)
}

// RecordShutdown counts a watchdog-initiated collector shutdown.
func (c *Collector) RecordShutdown() {
	if !c.active() {
		return
	}
	c.health.shutdowns.Inc()
}

// RecordHTTPRequest records one control API request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.active() {
		return
	}
	c.http.RecordRequest(method, route, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
