package logging

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// mask replaces redacted values.
const mask = "***"

// bearerPattern catches credentials that leak through upstream error
// messages, which Warden does not control.
var bearerPattern = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// Redactor masks data-source credentials in log output.
type Redactor struct {
	secrets  []string
	replacer *strings.Replacer
}

// NewRedactor returns a redactor for the given secret values. Secrets shorter
// than four characters are ignored, since masking them would mangle ordinary text.
func NewRedactor(secrets []string) *Redactor {
	seen := make(map[string]bool)
	var kept []string
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < 4 || seen[s] {
			continue
		}
		seen[s] = true
		kept = append(kept, s)
	}

	// Longest first so a secret that contains another is masked whole.
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })

	r := &Redactor{secrets: kept}
	if len(kept) > 0 {
		pairs := make([]string, 0, 2*len(kept))
		for _, s := range kept {
			pairs = append(pairs, s, RedactAPIKey(s))
		}
		r.replacer = strings.NewReplacer(pairs...)
	}
	return r
}

// Enabled reports whether the redactor has any secret to mask.
func (r *Redactor) Enabled() bool {
	return r != nil && len(r.secrets) > 0
}

// RedactString masks every configured secret and bearer token in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	if r.replacer != nil {
		value = r.replacer.Replace(value)
	}
	return bearerPattern.ReplaceAllString(value, "Bearer "+mask)
}

func (r *Redactor) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, RedactAPIKey(v.String()))
		}
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = r.redactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// isSensitiveKey checks if a key name indicates a credential.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range []string{"api_key", "apikey", "secret", "token", "password", "authorization"} {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return mask
	}
	return apiKey[:4] + mask
}

// redactingHandler masks secrets before records reach the next handler.
type redactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func newRedactingHandler(next slog.Handler, r *Redactor) *redactingHandler {
	return &redactingHandler{next: next, redactor: r}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
