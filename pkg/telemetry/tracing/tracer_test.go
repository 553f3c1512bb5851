package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"agentceli/warden/pkg/config"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewWithProvider(provider), rec
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// ============================================================================
// Tracer
// ============================================================================

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("disabled tracer reports Enabled")
	}

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()
	if id := TraceID(ctx); id != "" {
		t.Errorf("TraceID() = %q, want empty for noop span", id)
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestNew_InvalidSampler(t *testing.T) {
	cfg := &config.TracingConfig{Enabled: true, Endpoint: "localhost:4317", Sampler: "sometimes"}
	if _, err := New(cfg, "test"); err == nil {
		t.Error("New() with unknown sampler should fail")
	}
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	_, span := tr.Start(context.Background(), "nil")
	span.End()
	if tr.Enabled() {
		t.Error("nil tracer reports Enabled")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestStart_RecordsSpan(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	ctx, span := tr.Start(context.Background(), "governor.check")
	if TraceID(ctx) == "" {
		t.Error("TraceID() empty inside recording span")
	}
	SetStatus(span, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "governor.check" {
		t.Errorf("name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestAnnotateDecision(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	ctx, span := tr.Start(context.Background(), "reserve")
	AnnotateDecision(ctx, "santiment", "0.02", DecisionRejected, "rate_limit")
	span.End()

	attrs := rec.Ended()[0].Attributes()
	tests := map[string]string{
		AttrSource:   "santiment",
		AttrCost:     "0.02",
		AttrDecision: DecisionRejected,
		AttrLimit:    "rate_limit",
	}
	for key, want := range tests {
		v, ok := attrValue(attrs, key)
		if !ok || v.AsString() != want {
			t.Errorf("%s = %q (present %v), want %q", key, v.AsString(), ok, want)
		}
	}
}

func TestAnnotateDecision_NoSpan(t *testing.T) {
	// Must not panic without a span in the context.
	AnnotateDecision(context.Background(), "s", "0", DecisionAllowed, "")
}

// ============================================================================
// Sampling
// ============================================================================

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio", SamplerRatio, 0.5, false},
		{"ratio zero", SamplerRatio, 0, false},
		{"ratio above one", SamplerRatio, 1.5, true},
		{"ratio negative", SamplerRatio, -0.1, true},
		{"unknown", "adaptive", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("createSampler() returned nil sampler")
			}
		})
	}
}

// ============================================================================
// Propagation and middleware
// ============================================================================

func TestInjectExtract(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	ctx, span := tr.Start(context.Background(), "client")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("Inject() did not set traceparent")
	}

	got := Extract(context.Background(), headers)
	if TraceID(got) != TraceID(ctx) {
		t.Errorf("extracted trace ID = %q, want %q", TraceID(got), TraceID(ctx))
	}
}

func TestMiddleware(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/governor/reserve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	handler := Middleware(tr)(mux)

	tests := []struct {
		name       string
		method     string
		path       string
		wantName   string
		wantStatus int64
		wantError  bool
	}{
		{"matched route", http.MethodPost, "/v1/governor/reserve", "POST /v1/governor/reserve", 429, false},
		{"server error", http.MethodGet, "/boom", "GET /boom", 500, true},
		{"unmatched", http.MethodGet, "/nowhere", http.MethodGet, 404, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(rec.Ended())
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Header().Get("X-Trace-ID") == "" {
				t.Error("missing X-Trace-ID header")
			}
			spans := rec.Ended()
			if len(spans) != before+1 {
				t.Fatalf("ended spans = %d, want %d", len(spans), before+1)
			}
			span := spans[len(spans)-1]
			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}
			v, _ := attrValue(span.Attributes(), AttrHTTPStatus)
			if v.AsInt64() != tt.wantStatus {
				t.Errorf("status attribute = %d, want %d", v.AsInt64(), tt.wantStatus)
			}
			if (span.Status().Code == codes.Error) != tt.wantError {
				t.Errorf("span status = %v, wantError %v", span.Status().Code, tt.wantError)
			}
		})
	}
}

func TestMiddleware_ContinuesParentTrace(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	parentCtx, parent := tr.Start(context.Background(), "collector")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	Inject(parentCtx, req.Header)
	parent.End()

	Middleware(tr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	server := spans[len(spans)-1]
	if server.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("server span is not a child of the injected parent")
	}
	if server.SpanContext().TraceID() != parent.SpanContext().TraceID() {
		t.Error("server span did not continue the parent trace")
	}
}
