// Package health runs named health checks and serves the probe endpoints.
//
// # Overview
//
// A Checker holds named CheckFuncs and runs them concurrently, each under its
// own timeout, producing a Report. Warden uses two checkers: the supervisor's
// collector checks (artifact, endpoint, process) and the daemon's own
// readiness checks behind /ready.
//
// # Endpoints
//
//   - /health: liveness, always 200 while the process serves requests
//   - /ready: runs every check; 503 when any fails
//   - /version: build information
//
// # Usage
//
//	checker := health.New(10*time.Second, collector)
//	checker.RegisterCheck("storage", func(ctx context.Context) error {
//	    _, err := backend.Latest(ctx)
//	    return err
//	})
//
//	report := checker.Run(ctx)
//	if !report.Healthy() {
//	    logger.Warn("checks failed", "failed", report.Failed())
//	}
//
// # Timeouts
//
// A check that exceeds the timeout is reported unhealthy with ErrCheckTimeout
// even if it never returns. Checks should still honour their context so the
// goroutine running them exits.
package health
