// Package limits governs the collector's calls to upstream APIs.
//
// # Overview
//
// The Governor enforces, per source:
//
//   - a requests-per-minute limit (sliding or calendar-minute window)
//   - a daily cost cap, kept in an exact-decimal ledger
//
// and globally:
//
//   - a daily cost limit across all sources
//   - an emergency stop that blocks every call until resumed
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - ratelimit: request counters for the RPM window
//   - budget: the daily spend ledger
//   - storage: ledger snapshot persistence (memory, SQLite)
//
// # Usage
//
//	cfg, _ := limits.NewConfig(appConfig)
//	gov := limits.NewGovernor(cfg, limits.Options{Logger: logger, Alerts: sink})
//
//	// Advisory check, then report
//	if ok, reason := gov.CanProceed("santiment", cost); !ok {
//	    return fmt.Errorf("blocked: %s", reason)
//	}
//	gov.RecordOutcome("santiment", cost, err == nil)
//
//	// Atomic check-and-claim
//	r, err := gov.Reserve("santiment", cost)
//	...
//	gov.Commit(r.ID, callErr == nil)
//
// # Thread Safety
//
// All operations are safe for concurrent use. A single mutex guards the
// governor, so Status never mixes state from two moments.
package limits
