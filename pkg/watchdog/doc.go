// Package watchdog shuts the collector down when its output stays degraded.
//
// A dataset is valid when its file exists, was modified within its MaxAge,
// parses as a JSON object and holds a non-empty required field. Each Check
// counts the valid datasets:
//
//	running == 0               observe only, forget any low-data period
//	valid >= MinDatasets       HEALTHY, log recovery if the timer was set
//	first low count            DEGRADED, start the timer, raise DEGRADED
//	timer >= ShutdownThreshold stop the collector, SHUTDOWN, halt restarts
//
// After a shutdown the watchdog reports Halted until Release is called, and
// the supervisor leaves the collector stopped. FileWatcher re-runs the check
// as soon as a dataset file changes instead of waiting for the next interval.
package watchdog
