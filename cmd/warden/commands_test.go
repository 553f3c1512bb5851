package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"agentceli/warden/pkg/cli"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/security/auth"
	"agentceli/warden/pkg/server"
)

// ============================================================================
// Helpers
// ============================================================================

func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetContext(context.Background())
	return cmd, buf
}

// setGlobals sets the persistent flag variables and restores them after t.
func setGlobals(t *testing.T, config, addr, output string) {
	t.Helper()
	origConfig, origAddr, origOutput, origToken := cfgFile, apiAddr, outputFlag, apiToken
	t.Cleanup(func() { cfgFile, apiAddr, outputFlag, apiToken = origConfig, origAddr, origOutput, origToken })
	cfgFile, apiAddr, outputFlag, apiToken = config, addr, output, ""
	t.Setenv(tokenEnv, "")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAPI serves a control API over a governor with one paid source.
func newTestAPI(t *testing.T) (*limits.Governor, *httptest.Server) {
	t.Helper()
	gov := limits.NewGovernor(limits.Config{
		Sources: []limits.Source{
			{Name: "santiment", RPM: 10, CostPerCall: decimal.RequireFromString("0.02"), DailyCostLimit: decimal.RequireFromString("1.00"), Paid: true},
		},
		DailyCostLimit: decimal.RequireFromString("10.00"),
	}, limits.Options{Logger: quietLogger()})

	srv := server.NewServer(&config.ServerConfig{}, server.Deps{Governor: gov}, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return gov, ts
}

// ============================================================================
// Configuration
// ============================================================================

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	setGlobals(t, filepath.Join(t.TempDir(), "missing.yaml"), "", "text")

	_, err := loadConfig(nil)
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("loadConfig() error = %v, want *cli.ConfigError", err)
	}
}

func TestLoadConfigDefaultFileAbsent(t *testing.T) {
	setGlobals(t, "does-not-exist.yaml", "", "text")

	cmd := &cobra.Command{}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "does-not-exist.yaml", "")

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.ListenAddress != config.DefaultListenAddress {
		t.Errorf("ListenAddress = %q, want default", cfg.Server.ListenAddress)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "watchdog:\n  min_datasets: -1\ngovernor:\n  window_mode: hourly\n")
	setGlobals(t, path, "", "text")

	cmd, _ := testCommand(t)
	err := configValidateCmd.RunE(cmd, nil)

	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Errors) < 2 {
		t.Errorf("got %d field errors, want every invalid field reported", len(verr.Errors))
	}
}

func TestMaskKeys(t *testing.T) {
	cfg := config.NewDefault()
	cfg.DataSources.PaidAPIs = map[string]config.APIConfig{
		"santiment": {Enabled: true, Key: "sk-live-123", CostPerCall: 0.02},
	}

	cfg.Server.Auth.Tokens = []config.TokenConfig{{Name: "collector", Token: "collector-token-01"}}
	masked := maskKeys(cfg)

	if got := masked.Server.Auth.Tokens[0].Token; got != "***" {
		t.Errorf("masked token = %q, want ***", got)
	}
	if got := cfg.Server.Auth.Tokens[0].Token; got != "collector-token-01" {
		t.Errorf("original token changed to %q", got)
	}

	if got := masked.DataSources.PaidAPIs["santiment"].Key; got != "***" {
		t.Errorf("masked key = %q, want ***", got)
	}
	if got := cfg.DataSources.PaidAPIs["santiment"].Key; got != "sk-live-123" {
		t.Errorf("original key changed to %q", got)
	}
}

// ============================================================================
// Offline checks
// ============================================================================

func datasetConfig(t *testing.T, dir string, names ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("watchdog:\n  min_datasets: 2\n  datasets:\n")
	for _, name := range names {
		b.WriteString("    - name: " + name + "\n")
		b.WriteString("      path: " + filepath.Join(dir, name+".json") + "\n")
		b.WriteString("      required_field: data\n")
	}
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, b.String())
	return path
}

func TestDatasetsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "prices.json"), `{"data": {"btc": 1}}`)
	writeFile(t, filepath.Join(dir, "sentiment.json"), `{"data": [1, 2]}`)
	setGlobals(t, datasetConfig(t, dir, "prices", "sentiment", "onchain"), "", "text")

	cmd, buf := testCommand(t)
	if err := runDatasets(cmd, nil); err != nil {
		t.Fatalf("runDatasets() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "2/3 valid (minimum 2)") {
		t.Errorf("summary missing:\n%s", out)
	}
	if !strings.Contains(out, "MISSING") {
		t.Errorf("missing dataset not reported:\n%s", out)
	}
}

func TestDatasetsCommandBelowMinimum(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "prices.json"), `{"data": {}}`)
	setGlobals(t, datasetConfig(t, dir, "prices", "sentiment"), "", "json")

	cmd, buf := testCommand(t)
	err := runDatasets(cmd, nil)
	if !errors.Is(err, errUnhealthy) {
		t.Fatalf("runDatasets() error = %v, want errUnhealthy", err)
	}

	var report datasetReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.Valid != 0 || len(report.Datasets) != 2 {
		t.Errorf("report = %+v, want 0 valid of 2", report)
	}
}

// ============================================================================
// Control API commands
// ============================================================================

func TestStatusCommand(t *testing.T) {
	gov, ts := newTestAPI(t)
	gov.RecordOutcome("santiment", decimal.RequireFromString("0.02"), true)
	setGlobals(t, "", ts.URL, "text")

	cmd, buf := testCommand(t)
	if err := statusCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("status error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"$0.02 of $10.00", "santiment", "Emergency:  off"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommandToken(t *testing.T) {
	gov := limits.NewGovernor(limits.Config{DailyCostLimit: decimal.RequireFromString("10.00")}, limits.Options{Logger: quietLogger()})
	srv := server.NewServer(&config.ServerConfig{}, server.Deps{
		Governor: gov,
		Auth:     auth.NewValidator(config.AuthConfig{Token: "operator-token-0001"}),
	}, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	setGlobals(t, "", ts.URL, "text")
	cmd, _ := testCommand(t)
	err := statusCmd.RunE(cmd, nil)
	if !cli.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("status without token error = %v, want 401", err)
	}

	t.Setenv(tokenEnv, "operator-token-0001")
	cmd, buf := testCommand(t)
	if err := statusCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("status with token error = %v", err)
	}
	if !strings.Contains(buf.String(), "$0.00 of $10.00") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestEmergencyCommands(t *testing.T) {
	gov, ts := newTestAPI(t)
	setGlobals(t, "", ts.URL, "text")

	origReason := emergencyFlags.reason
	defer func() { emergencyFlags.reason = origReason }()
	emergencyFlags.reason = "provider incident"

	cmd, buf := testCommand(t)
	if err := emergencyStopCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("emergency stop error = %v", err)
	}
	if !gov.IsEmergency() {
		t.Fatal("kill switch not engaged")
	}
	if !strings.Contains(buf.String(), "ENGAGED (provider incident)") {
		t.Errorf("output = %q", buf.String())
	}

	if err := emergencyResumeCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("emergency resume error = %v", err)
	}
	if gov.IsEmergency() {
		t.Error("kill switch still engaged after resume")
	}
}

func TestResetDailyCommand(t *testing.T) {
	gov, ts := newTestAPI(t)
	gov.RecordOutcome("santiment", decimal.RequireFromString("0.50"), true)
	setGlobals(t, "", ts.URL, "json")

	cmd, buf := testCommand(t)
	if err := resetDailyCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("reset-daily error = %v", err)
	}

	var st limits.Status
	if err := json.Unmarshal(buf.Bytes(), &st); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !st.TotalDailyCost.IsZero() {
		t.Errorf("TotalDailyCost = %s, want 0", st.TotalDailyCost)
	}
}

func TestReleaseWithoutWatchdog(t *testing.T) {
	_, ts := newTestAPI(t)
	setGlobals(t, "", ts.URL, "text")

	cmd, _ := testCommand(t)
	err := releaseCmd.RunE(cmd, nil)

	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("release error = %v, want *cli.CommandError", err)
	}
	if !cli.IsStatus(err, http.StatusServiceUnavailable) {
		t.Errorf("release error = %v, want 503", err)
	}
}

func TestAlertsCommandEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit = %q, want 5", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte(`{"alerts": [], "count": 0}`))
	}))
	defer ts.Close()
	setGlobals(t, "", ts.URL, "text")

	origLimit := alertsFlags.limit
	defer func() { alertsFlags.limit = origLimit }()
	alertsFlags.limit = 5

	cmd, buf := testCommand(t)
	if err := alertsCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("alerts error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No alerts." {
		t.Errorf("output = %q", buf.String())
	}
}

// ============================================================================
// Daemon wiring
// ============================================================================

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	disabled := false
	cfg := config.NewDefault()
	cfg.Governor.Storage.Backend = "memory"
	cfg.Alerts.Path = filepath.Join(t.TempDir(), "alerts.json")
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Supervisor.Enabled = &disabled
	cfg.Watchdog.Enabled = &disabled
	return cfg
}

func TestNewAppDisabledComponents(t *testing.T) {
	a, err := newApp(testAppConfig(t), quietLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	deps := a.serverDeps()
	if deps.Supervisor != nil || deps.Watchdog != nil {
		t.Error("disabled components must not be exposed")
	}
	if deps.Monitor == nil {
		t.Error("monitor should be exposed")
	}
	if len(a.loops) != 1 || a.loops[0].Name() != "monitor" {
		t.Errorf("loops = %d, want only the monitor loop", len(a.loops))
	}
}

func TestNewAppUnknownBackend(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Governor.Storage.Backend = "postgres"

	if _, err := newApp(cfg, quietLogger()); err == nil {
		t.Error("newApp() expected error for unknown backend")
	}
}

func TestAppRunPersistsOnShutdown(t *testing.T) {
	a, err := newApp(testAppConfig(t), quietLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	a.governor.RecordOutcome("santiment", decimal.RequireFromString("0.02"), true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !a.server.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.server.Addr() + "/ready")
	if err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	state, err := a.backend.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if state == nil || !state.Total().Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("persisted snapshot = %+v, want total 0.02", state)
	}
}
