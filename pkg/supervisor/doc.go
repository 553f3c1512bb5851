// Package supervisor keeps the collector running.
//
// Each cycle runs three checks concurrently through a health.Checker:
//
//   - artifact: the output file was modified within MaxDataAge and its
//     embedded timestamp, when present, is within the same bound
//   - endpoint: the collector's HTTP endpoint answers 200 with fresh JSON
//   - process: at least one collector process is running
//
// The result is RUNNING_HEALTHY, RUNNING_DEGRADED or STOPPED. Anything but
// healthy triggers Restart, which tries each Strategy in turn: the control
// command first, then terminating and spawning the collector directly. When
// the dataset watchdog has halted the collector, restarts are skipped until an
// operator releases the halt.
package supervisor
