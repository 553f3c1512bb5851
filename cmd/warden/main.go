// Warden is the budget-and-health control plane of the AgentCeli collector.
//
// It keeps the collector's paid API spend inside a daily budget, restarts the
// collector when its output goes stale, and shuts it down when it stops
// producing enough valid datasets. A small HTTP API lets the collector ask
// for permission before each call and lets operators inspect and steer it.
//
// Usage:
//
//	# Start the daemon with ./config.yaml
//	warden run
//
//	# Start with a custom configuration file
//	warden run --config /etc/warden/config.yaml
//
//	# Show budget, supervisor and watchdog state of a running daemon
//	warden status
//
//	# Engage and release the kill switch
//	warden emergency stop --reason "provider incident"
//	warden emergency resume
//
//	# Check the collector's datasets without a daemon
//	warden datasets
package main

func main() {
	Execute()
}
