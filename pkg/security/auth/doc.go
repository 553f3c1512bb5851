// Package auth provides bearer token authentication for the control API.
//
// Tokens come from server.auth in the configuration. A request carries one in
// the Authorization header:
//
//	Authorization: Bearer <token>
//
// or, for tooling that cannot set Authorization, in X-Warden-Token.
//
// Only the /v1 routes are protected. Probes, /version and the metrics
// endpoint stay open so orchestrators and scrapers need no credentials.
//
// A read-only token may call GET routes; anything that changes governor,
// ledger or collector state needs a full token. The authenticated principal
// is stored in the request context:
//
//	if p, ok := auth.PrincipalFrom(r.Context()); ok {
//	    logger.Info("emergency stop", "operator", p.Name)
//	}
package auth
