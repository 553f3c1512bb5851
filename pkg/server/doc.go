// Package server provides the HTTP control API of warden.
//
// The collector uses it to ask the cost governor for permission and to report
// completed calls; operators use it to inspect state and to pull the levers
// that the loops do not pull on their own.
//
// # Routes
//
// Probes and telemetry:
//
//   - GET /health - liveness, always 200 while the process serves
//   - GET /ready - readiness, 503 when a registered check fails
//   - GET /version - build information
//   - GET /metrics - Prometheus metrics (path configurable)
//
// State:
//
//   - GET /v1/status - governor, supervisor and watchdog snapshots
//   - GET /v1/alerts?limit=N - most recent alerts, oldest first
//   - GET /v1/recommendations - cost optimization advice
//
// Governor:
//
//   - POST /v1/governor/check {"source","cost"} - advisory admission check
//   - POST /v1/governor/record {"source","cost","success"} - report a call
//   - POST /v1/governor/reserve {"source","cost"} - atomic check-and-claim
//   - POST /v1/governor/reservations/{id}/commit {"success"}
//   - POST /v1/governor/reservations/{id}/release
//
// Operator actions:
//
//   - POST /v1/emergency/stop {"reason"} and POST /v1/emergency/resume
//   - POST /v1/ledger/reset - start a new spend day
//   - POST /v1/collector/release - clear the watchdog's restart halt
//
// When server.auth lists tokens, every /v1 route needs
// "Authorization: Bearer <token>"; probes and metrics stay open.
//
// Errors use one envelope:
//
//	{"error": {"code": "rate_limit", "message": "Rate limit exceeded: 60/60 RPM", "request_id": "..."}}
//
// A rejected reservation answers 429 with the limit type as code. A rejected
// check answers 200 with "allowed": false, since the check itself succeeded.
package server
