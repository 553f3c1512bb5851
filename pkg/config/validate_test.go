package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(NewDefault()); err != nil {
		t.Errorf("expected default config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := NewDefault()
	cfg.DailyCostLimit = -1
	cfg.Governor.WindowMode = "hourly"
	cfg.Server.ListenAddress = "not-an-address"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(verr.Error(), "validation failed with 3 errors") {
		t.Errorf("error message should mention the error count: %s", verr.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "free api with cost",
			mutate: func(c *Config) { c.DataSources.FreeAPIs["binance"] = APIConfig{Enabled: true, CostPerCall: 0.01} },
			field:  "data_sources.free_apis.binance.cost_per_call",
		},
		{
			name:   "negative paid cost",
			mutate: func(c *Config) { c.DataSources.PaidAPIs["santiment"] = APIConfig{CostPerCall: -0.02} },
			field:  "data_sources.paid_apis.santiment.cost_per_call",
		},
		{
			name:   "bad reset schedule",
			mutate: func(c *Config) { c.Governor.ResetSchedule = "every midnight" },
			field:  "governor.reset_schedule",
		},
		{
			name:   "unknown storage backend",
			mutate: func(c *Config) { c.Governor.Storage.Backend = "redis" },
			field:  "governor.storage.backend",
		},
		{
			name:   "emergency below alert",
			mutate: func(c *Config) { c.Monitor.EmergencyThreshold = 0.5 },
			field:  "monitor.emergency_threshold",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.Alerts.Kafka.Enabled = true
				c.Alerts.Kafka.Brokers = nil
			},
			field: "alerts.kafka.brokers",
		},
		{
			name:   "bad health url",
			mutate: func(c *Config) { c.Supervisor.HealthURL = "localhost" },
			field:  "supervisor.health_url",
		},
		{
			name:   "min datasets above configured",
			mutate: func(c *Config) { c.Watchdog.MinDatasets = 4 },
			field:  "watchdog.min_datasets",
		},
		{
			name: "duplicate dataset",
			mutate: func(c *Config) {
				c.Watchdog.Datasets = append(c.Watchdog.Datasets, DatasetConfig{
					Name: "hybrid", Path: "x.json", MaxAge: time.Minute,
				})
			},
			field: "watchdog.datasets[3].name",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			field:  "telemetry.logging.level",
		},
		{
			name: "bad tracing sampler",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Sampler = "sometimes"
			},
			field: "telemetry.tracing.sampler",
		},
		{
			name: "tracing ratio out of range",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.SampleRatio = 1.5
			},
			field: "telemetry.tracing.sample_ratio",
		},
		{
			name:   "short auth token",
			mutate: func(c *Config) { c.Server.Auth.Token = "short" },
			field:  "server.auth.token",
		},
		{
			name: "unnamed auth token",
			mutate: func(c *Config) {
				c.Server.Auth.Tokens = []TokenConfig{{Token: "0123456789abcdef"}}
			},
			field: "server.auth.tokens[0].name",
		},
		{
			name: "duplicate auth token",
			mutate: func(c *Config) {
				c.Server.Auth.Tokens = []TokenConfig{
					{Name: "collector", Token: "0123456789abcdef"},
					{Name: "dashboard", Token: "0123456789abcdef", ReadOnly: true},
				}
			},
			field: "server.auth.tokens[1].token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %q, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestFieldError_Error(t *testing.T) {
	fe := FieldError{Field: "governor.window_mode", Message: "bad"}
	if fe.Error() != "governor.window_mode: bad" {
		t.Errorf("unexpected message: %q", fe.Error())
	}
}
