// Package metrics provides Prometheus metrics for Warden.
//
// # Overview
//
// A single Collector registers every metric on a private registry and exposes
// it through Handler. Components receive the collector and record through its
// methods, which are nil-safe and cheap when metrics are disabled.
//
// # Metrics Categories
//
//   - Governor: admission decisions, spend, ledger gauges, kill switch
//   - Loops: monitor, supervisor and watchdog iterations
//   - Supervisor: per-check health, restart attempts
//   - Watchdog: valid dataset count, dataset ages, shutdowns
//   - Alerts: emitted alerts by type and severity
//   - HTTP: control API requests
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordDecision("santiment", "allowed")
//	mux.Handle("/metrics", collector.Handler())
package metrics
