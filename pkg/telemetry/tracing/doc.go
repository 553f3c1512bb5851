// Package tracing provides OpenTelemetry distributed tracing for warden.
//
// Spans are exported over OTLP gRPC to any compatible collector (Jaeger,
// Tempo, the OpenTelemetry Collector). When tracing is disabled the Tracer
// hands out no-op spans, and a nil *Tracer behaves the same way, so callers
// never need to guard span creation.
//
// # Spans
//
// The control API opens one server span per request via Middleware. A caller
// that sends a W3C traceparent header, such as the collector asking the
// governor for permission before an upstream call, gets the admission
// decision attached to its own trace:
//
//	warden.source   = "santiment"
//	warden.cost     = "0.02"
//	warden.decision = "rejected"
//	warden.limit    = "rate_limit"
//
// The scheduler loops open one span per cycle, tagged with warden.loop.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Sampling is parent based: a sampled parent always yields a sampled child,
// and root spans follow the configured strategy.
package tracing
