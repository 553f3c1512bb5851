// Package telemetry groups the observability packages of warden.
//
//   - logging: slog over zerolog, with credential masking and per-component
//     journal files
//   - metrics: Prometheus collectors for spend, admissions, loops and HTTP
//   - tracing: OpenTelemetry spans for control API requests and loop cycles
//   - health: liveness, readiness and version handlers
//
// Every collector and tracer is nil-safe, so components take them as optional
// dependencies and tests can pass nil.
package telemetry
