package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/limits/ratelimit"
	"agentceli/warden/pkg/monitor"
	"agentceli/warden/pkg/server/middleware"
	"agentceli/warden/pkg/supervisor"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/telemetry/metrics"
	"agentceli/warden/pkg/watchdog"
)

type fakeSupervisor struct{}

func (fakeSupervisor) Status() supervisor.Status {
	return supervisor.Status{State: supervisor.StateHealthy, RestartCount: 2}
}

type fakeWatchdog struct {
	halted bool
}

func (w *fakeWatchdog) Status() watchdog.Status {
	return watchdog.Status{State: watchdog.StateHealthy, Halted: w.halted, MinDatasets: 3}
}

func (w *fakeWatchdog) Release() bool {
	was := w.halted
	w.halted = false
	return was
}

type testEnv struct {
	handler  http.Handler
	gov      *limits.Governor
	store    *alerts.Store
	watchdog *fakeWatchdog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := alerts.NewStore(filepath.Join(t.TempDir(), "alerts.json"), 100, nil)
	gov := limits.NewGovernor(limits.Config{
		Sources: []limits.Source{
			{Name: "coingecko", RPM: 2, DailyCostLimit: decimal.Zero},
			{Name: "santiment", RPM: 100, CostPerCall: decimal.RequireFromString("0.02"), DailyCostLimit: decimal.RequireFromString("1.00"), Paid: true},
		},
		DailyCostLimit:    decimal.RequireFromString("10.00"),
		HighCostThreshold: decimal.RequireFromString("0.05"),
		// Real clock: a minute boundary must not refill coingecko mid-test.
		WindowMode: ratelimit.ModeSliding,
	}, limits.Options{Alerts: store})

	wd := &fakeWatchdog{halted: true}
	m := metrics.NewCollector(&config.MetricsConfig{}, nil)

	srv := NewServer(&config.ServerConfig{}, Deps{
		Governor:   gov,
		Monitor:    monitor.New(gov, monitor.Config{}, store, nil),
		Supervisor: fakeSupervisor{},
		Watchdog:   wd,
		Alerts:     store,
		Metrics:    m,
		Version:    health.NewVersionInfo("1.2.3", "abc123", "2026-01-01"),
	}, nil)

	return &testEnv{handler: srv.Handler(), gov: gov, store: store, watchdog: wd}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// ============================================================================
// Probes
// ============================================================================

func TestProbes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/version", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("missing request ID header")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	var info health.VersionInfo
	decodeBody(t, env.do(t, http.MethodGet, "/version", ""), &info)
	if info.Version != "1.2.3" || info.Commit != "abc123" {
		t.Errorf("version = %+v", info)
	}
}

// ============================================================================
// Governor routes
// ============================================================================

func TestCheck(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantAllowed bool
		wantLimit   string
	}{
		{"allowed", `{"source":"santiment","cost":0.02}`, http.StatusOK, true, ""},
		{"cost as string", `{"source":"santiment","cost":"0.02"}`, http.StatusOK, true, ""},
		{"unknown source allowed", `{"source":"newapi","cost":0}`, http.StatusOK, true, ""},
		{"over source cap", `{"source":"santiment","cost":1.50}`, http.StatusOK, false, limits.LimitSourceBudget},
		{"negative cost", `{"source":"santiment","cost":-1}`, http.StatusBadRequest, false, ""},
		{"missing source", `{"cost":0.02}`, http.StatusBadRequest, false, ""},
		{"unknown field", `{"source":"x","price":1}`, http.StatusBadRequest, false, ""},
		{"not json", `source=x`, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/governor/check", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			var resp CheckResponse
			decodeBody(t, w, &resp)
			if resp.Allowed != tt.wantAllowed || resp.Limit != tt.wantLimit {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestRecordAccumulatesLedger(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/v1/governor/record", `{"source":"santiment","cost":0.02,"success":true}`)
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
	}
	env.do(t, http.MethodPost, "/v1/governor/record", `{"source":"santiment","cost":0.02,"success":false}`)

	got := env.gov.Status().Sources["santiment"].DailyCost
	if !got.Equal(decimal.RequireFromString("0.06")) {
		t.Errorf("daily cost = %s, want 0.06", got)
	}

	if w := env.do(t, http.MethodPost, "/v1/governor/record", `{"source":"santiment","cost":0.02}`); w.Code != http.StatusBadRequest {
		t.Errorf("record without success: status = %d", w.Code)
	}
}

func TestReserveCommitRelease(t *testing.T) {
	env := newTestEnv(t)

	reserve := func() (*httptest.ResponseRecorder, limits.Reservation) {
		w := env.do(t, http.MethodPost, "/v1/governor/reserve", `{"source":"coingecko","cost":0}`)
		var r limits.Reservation
		if w.Code == http.StatusCreated {
			decodeBody(t, w, &r)
		}
		return w, r
	}

	w1, r1 := reserve()
	w2, r2 := reserve()
	if w1.Code != http.StatusCreated || w2.Code != http.StatusCreated {
		t.Fatalf("reserve statuses = %d, %d", w1.Code, w2.Code)
	}

	// RPM 2 is exhausted by the two reservations
	w3, _ := reserve()
	if w3.Code != http.StatusTooManyRequests {
		t.Fatalf("third reserve status = %d, want 429", w3.Code)
	}
	var errBody middleware.ErrorBody
	decodeBody(t, w3, &errBody)
	if errBody.Error.Code != limits.LimitRate {
		t.Errorf("error code = %q, want %q", errBody.Error.Code, limits.LimitRate)
	}

	if w := env.do(t, http.MethodPost, "/v1/governor/reservations/"+r1.ID+"/commit", `{"success":true}`); w.Code != http.StatusNoContent {
		t.Errorf("commit status = %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/v1/governor/reservations/"+r2.ID+"/release", ""); w.Code != http.StatusNoContent {
		t.Errorf("release status = %d", w.Code)
	}

	// settled reservations are gone
	if w := env.do(t, http.MethodPost, "/v1/governor/reservations/"+r1.ID+"/commit", `{"success":true}`); w.Code != http.StatusNotFound {
		t.Errorf("second commit status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/governor/reservations/"+r2.ID+"/release", ""); w.Code != http.StatusNotFound {
		t.Errorf("second release status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/governor/reservations/x/commit", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("commit without success status = %d, want 400", w.Code)
	}
}

// ============================================================================
// Operator actions
// ============================================================================

func TestEmergencyStopAndResume(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/emergency/stop", `{"reason":"manual test"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
	var st limits.Status
	decodeBody(t, w, &st)
	if !st.Emergency || st.EmergencyReason != "manual test" {
		t.Errorf("status after stop = %+v", st)
	}

	var check CheckResponse
	decodeBody(t, env.do(t, http.MethodPost, "/v1/governor/check", `{"source":"coingecko","cost":0}`), &check)
	if check.Allowed || check.Limit != limits.LimitEmergency {
		t.Errorf("check during emergency = %+v", check)
	}

	env.do(t, http.MethodPost, "/v1/emergency/resume", "")
	if env.gov.IsEmergency() {
		t.Error("still stopped after resume")
	}
}

func TestEmergencyStopDefaultReason(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/emergency/stop", "")
	if got := env.gov.Status().EmergencyReason; got != ManualStopReason {
		t.Errorf("reason = %q, want %q", got, ManualStopReason)
	}
}

func TestLedgerReset(t *testing.T) {
	env := newTestEnv(t)
	env.gov.RecordOutcome("santiment", decimal.RequireFromString("0.50"), true)

	w := env.do(t, http.MethodPost, "/v1/ledger/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !env.gov.Status().TotalDailyCost.IsZero() {
		t.Error("ledger not reset")
	}
}

func TestCollectorRelease(t *testing.T) {
	env := newTestEnv(t)

	var resp map[string]bool
	decodeBody(t, env.do(t, http.MethodPost, "/v1/collector/release", ""), &resp)
	if !resp["released"] {
		t.Error("first release did not report a halt")
	}
	decodeBody(t, env.do(t, http.MethodPost, "/v1/collector/release", ""), &resp)
	if resp["released"] {
		t.Error("second release reported a halt")
	}
}

// ============================================================================
// State routes
// ============================================================================

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	var resp StatusResponse
	decodeBody(t, env.do(t, http.MethodGet, "/v1/status", ""), &resp)
	if resp.Supervisor == nil || resp.Supervisor.RestartCount != 2 {
		t.Errorf("supervisor = %+v", resp.Supervisor)
	}
	if resp.Watchdog == nil || !resp.Watchdog.Halted {
		t.Errorf("watchdog = %+v", resp.Watchdog)
	}
	if _, ok := resp.Governor.Sources["santiment"]; !ok {
		t.Error("governor sources missing")
	}
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = env.store.Send(ctx, alerts.New(alerts.TypeHighCost, alerts.SeverityMedium, "santiment", "expensive"))
	}

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 5},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusOK, 5},
		{"?limit=-1", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/v1/alerts"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Code != http.StatusOK {
				return
			}
			var resp struct {
				Count int `json:"count"`
			}
			decodeBody(t, w, &resp)
			if resp.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", resp.Count, tt.wantCount)
			}
		})
	}
}

func TestRecommendations(t *testing.T) {
	env := newTestEnv(t)
	// 0.90 of the 1.00 santiment cap
	for i := 0; i < 45; i++ {
		env.gov.RecordOutcome("santiment", decimal.RequireFromString("0.02"), true)
	}

	var resp struct {
		Recommendations []monitor.Recommendation `json:"recommendations"`
	}
	decodeBody(t, env.do(t, http.MethodGet, "/v1/recommendations", ""), &resp)

	found := false
	for _, r := range resp.Recommendations {
		if r.Source == "santiment" && r.Kind == monitor.KindReduceFrequency {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %+v, want reduce_frequency for santiment", resp.Recommendations)
	}
}

func TestMissingComponents(t *testing.T) {
	gov := limits.NewGovernor(limits.Config{DailyCostLimit: decimal.NewFromInt(10)}, limits.Options{})
	h := NewServer(&config.ServerConfig{}, Deps{Governor: gov}, nil).Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/alerts"},
		{http.MethodGet, "/v1/recommendations"},
		{http.MethodPost, "/v1/collector/release"},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, bytes.NewReader(nil)))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s = %d, want 503", tc.method, tc.path, w.Code)
		}
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestStartAndShutdown(t *testing.T) {
	gov := limits.NewGovernor(limits.Config{DailyCostLimit: decimal.NewFromInt(10)}, limits.Options{})
	srv := NewServer(&config.ServerConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: 2 * time.Second}, Deps{Governor: gov}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Fatal("server not running")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}
	if srv.IsRunning() {
		t.Error("still running after shutdown")
	}
}

func TestStartTwice(t *testing.T) {
	gov := limits.NewGovernor(limits.Config{DailyCostLimit: decimal.NewFromInt(10)}, limits.Options{})
	srv := NewServer(&config.ServerConfig{ListenAddress: "127.0.0.1:0"}, Deps{Governor: gov}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start succeeded")
	}
}
