package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}

	ctx = WithCycle(ctx, "watchdog-42")
	if got := GetCycle(ctx); got != "watchdog-42" {
		t.Errorf("GetCycle() = %q, want %q", got, "watchdog-42")
	}

	ctx = WithSource(ctx, "coingecko")
	if got := GetSource(ctx); got != "coingecko" {
		t.Errorf("GetSource() = %q, want %q", got, "coingecko")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, nil))

	ctx := WithCycle(WithRequestID(context.Background(), "req-9"), "monitor-3")
	FromContext(ctx, base).Info("tick")

	out := buf.String()
	for _, want := range []string{"request_id=req-9", "cycle=monitor-3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "source=") {
		t.Errorf("unset source should not be logged: %s", out)
	}
}

func TestFromContext_NilLogger(t *testing.T) {
	if FromContext(context.Background(), nil) == nil {
		t.Error("FromContext(nil logger) returned nil")
	}
}
