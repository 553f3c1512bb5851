// Package middleware provides the HTTP middleware of the control API.
//
// The chain, outermost first:
//
//	handler = Recovery(RequestID(Logging(handler)))
//
// RequestID reuses a client-supplied X-Request-ID or generates a UUID, stores
// it in the request context through the logging package, and echoes it in the
// response. Logging records method, route, status and latency for every
// request and feeds the same values to the metrics collector. Recovery turns a
// panic into a 500 JSON error without exposing internals.
package middleware
