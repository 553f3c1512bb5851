package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"agentceli/warden/pkg/server/middleware"
)

// TokenHeader is the alternative to Authorization: Bearer.
const TokenHeader = "X-Warden-Token"

// ProtectedPrefix is the route prefix that requires a token.
const ProtectedPrefix = "/v1/"

type contextKey string

const principalKey contextKey = "principal"

// Middleware rejects /v1 requests without a valid token (401) and mutating
// requests made with a read-only token (403). A validator without tokens
// lets everything through.
func Middleware(v *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		if !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, ProtectedPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			p, err := v.Validate(extractToken(r))
			if err != nil {
				logger.Warn("request rejected",
					"error", err,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", middleware.GetRequestID(r.Context()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
				middleware.WriteError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			if p.ReadOnly && r.Method != http.MethodGet && r.Method != http.MethodHead {
				logger.Warn("read-only token used for a mutating request",
					"principal", p.Name,
					"method", r.Method,
					"path", r.URL.Path,
				)
				middleware.WriteError(w, r, http.StatusForbidden, "forbidden", "token "+p.Name+" is read-only")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return r.Header.Get(TokenHeader)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// PrincipalName returns the principal name or "anonymous".
func PrincipalName(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.Name
	}
	return "anonymous"
}
