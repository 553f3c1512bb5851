package config

import "testing"

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.DailyCostLimit != 10.00 {
		t.Errorf("expected daily limit 10.00, got %v", cfg.DailyCostLimit)
	}
	if cfg.Governor.WindowMode != DefaultWindowMode {
		t.Errorf("expected window mode %q, got %q", DefaultWindowMode, cfg.Governor.WindowMode)
	}
	if cfg.Governor.HighCostThreshold != 0.05 {
		t.Errorf("expected high cost threshold 0.05, got %v", cfg.Governor.HighCostThreshold)
	}
	if cfg.Monitor.EmergencyThreshold != 0.95 {
		t.Errorf("expected emergency threshold 0.95, got %v", cfg.Monitor.EmergencyThreshold)
	}
	if cfg.Watchdog.MinDatasets != 3 {
		t.Errorf("expected min datasets 3, got %d", cfg.Watchdog.MinDatasets)
	}
	if cfg.Supervisor.Control.StopTimeout != DefaultControlStopTimeout {
		t.Errorf("expected stop timeout %v, got %v", DefaultControlStopTimeout, cfg.Supervisor.Control.StopTimeout)
	}
	if !IsEnabled(cfg.Watchdog.EmergencyStopOnShutdown, false) {
		t.Error("expected emergency stop on shutdown by default")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	disabled := false
	cfg := &Config{
		DailyCostLimit: 3,
		Monitor:        MonitorConfig{Enabled: &disabled},
		DataSources: DataSourcesConfig{
			PaidAPIs: map[string]APIConfig{"santiment": {Enabled: true, CostPerCall: 0.02}},
		},
		Watchdog: WatchdogConfig{
			Datasets: []DatasetConfig{{Name: "only", Path: "only.json"}},
		},
	}
	ApplyDefaults(cfg)

	if cfg.DailyCostLimit != 3 {
		t.Errorf("explicit daily limit overwritten: %v", cfg.DailyCostLimit)
	}
	if IsEnabled(cfg.Monitor.Enabled, true) {
		t.Error("explicit monitor disable overwritten")
	}
	if len(cfg.DataSources.PaidAPIs) != 1 || cfg.DataSources.FreeAPIs != nil {
		t.Errorf("explicit data sources should not be merged with defaults: %+v", cfg.DataSources)
	}
	if cfg.Watchdog.Datasets[0].MaxAge != DefaultDatasetMaxAge {
		t.Errorf("expected dataset max age default, got %v", cfg.Watchdog.Datasets[0].MaxAge)
	}
}

func TestApplyDefaults_WindowModeIsMinuteBucket(t *testing.T) {
	cfg := NewDefault()
	if cfg.Governor.WindowMode != "minute_bucket" {
		t.Errorf("expected default window mode minute_bucket, got %q", cfg.Governor.WindowMode)
	}
}

func TestDefaultCollectionsAreCopies(t *testing.T) {
	a := DefaultDatasets()
	a[0].Name = "mutated"
	if DefaultDatasets()[0].Name == "mutated" {
		t.Error("DefaultDatasets shares state between calls")
	}
}

func TestConfig_APIKeys(t *testing.T) {
	cfg := NewDefault()
	cfg.DataSources.PaidAPIs["santiment"] = APIConfig{Enabled: true, Key: "secret-1", CostPerCall: 0.02}

	keys := cfg.APIKeys()
	if len(keys) != 1 || keys[0] != "secret-1" {
		t.Errorf("expected [secret-1], got %v", keys)
	}
}

func TestConfig_Secrets(t *testing.T) {
	cfg := NewDefault()
	cfg.DataSources.PaidAPIs["santiment"] = APIConfig{Enabled: true, Key: "secret-1", CostPerCall: 0.02}
	cfg.Server.Auth.Token = "operator-token-0001"
	cfg.Server.Auth.Tokens = []TokenConfig{{Name: "collector", Token: "collector-token-01"}}

	got := cfg.Secrets()
	want := map[string]bool{"secret-1": true, "operator-token-0001": true, "collector-token-01": true}
	if len(got) != len(want) {
		t.Fatalf("Secrets() = %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected secret %q", s)
		}
	}
	if !cfg.Server.Auth.Enabled() {
		t.Error("Auth.Enabled() = false with tokens configured")
	}
}
