package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "governor.window_mode").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateDataSources(cfg)...)
	errs = append(errs, validateGovernor(&cfg.Governor)...)
	errs = append(errs, validateMonitor(&cfg.Monitor)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateSupervisor(&cfg.Supervisor)...)
	errs = append(errs, validateWatchdog(&cfg.Watchdog)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateDataSources(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.DailyCostLimit <= 0 {
		errs = append(errs, FieldError{
			Field:   "daily_cost_limit",
			Message: fmt.Sprintf("must be positive, got %v", cfg.DailyCostLimit),
		})
	}

	for name, api := range cfg.DataSources.FreeAPIs {
		if api.CostPerCall != 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("data_sources.free_apis.%s.cost_per_call", name),
				Message: "free APIs cannot have a per-call cost",
			})
		}
		if _, dup := cfg.DataSources.PaidAPIs[name]; dup {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("data_sources.free_apis.%s", name),
				Message: "source is listed as both free and paid",
			})
		}
	}

	for name, api := range cfg.DataSources.PaidAPIs {
		if api.CostPerCall < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("data_sources.paid_apis.%s.cost_per_call", name),
				Message: fmt.Sprintf("must be non-negative, got %v", api.CostPerCall),
			})
		}
	}

	for tier, seconds := range cfg.UpdateIntervals {
		if seconds <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("update_intervals.%s", tier),
				Message: fmt.Sprintf("must be positive, got %d", seconds),
			})
		}
	}

	return errs
}

func validateGovernor(g *GovernorConfig) []FieldError {
	var errs []FieldError

	validModes := map[string]bool{"sliding": true, "minute_bucket": true}
	if !validModes[g.WindowMode] {
		errs = append(errs, FieldError{
			Field:   "governor.window_mode",
			Message: fmt.Sprintf("invalid window mode %q: must be 'sliding' or 'minute_bucket'", g.WindowMode),
		})
	}

	if g.HighCostThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "governor.high_cost_threshold",
			Message: "must be non-negative",
		})
	}
	errs = append(errs, validateFraction("governor.warn_threshold", g.WarnThreshold)...)
	errs = append(errs, validatePositiveDuration("governor.retention", g.Retention)...)
	errs = append(errs, validatePositiveDuration("governor.reservation_ttl", g.ReservationTTL)...)

	if g.HistorySize < 1 {
		errs = append(errs, FieldError{Field: "governor.history_size", Message: "must be at least 1"})
	}
	if g.PerSourceCeiling <= 0 {
		errs = append(errs, FieldError{Field: "governor.per_source_ceiling", Message: "must be positive"})
	}
	if g.MaxDailyCalls < 1 {
		errs = append(errs, FieldError{Field: "governor.max_daily_calls", Message: "must be at least 1"})
	}

	errs = append(errs, validateSchedule("governor.reset_schedule", g.ResetSchedule)...)
	errs = append(errs, validateSchedule("governor.prune_schedule", g.PruneSchedule)...)
	errs = append(errs, validateSchedule("governor.persist_schedule", g.PersistSchedule)...)

	for name, o := range g.Sources {
		if o.RPM < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("governor.sources.%s.rpm", name),
				Message: "must be non-negative",
			})
		}
		if o.DailyCostLimit < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("governor.sources.%s.daily_cost_limit", name),
				Message: "must be non-negative",
			})
		}
	}

	switch g.Storage.Backend {
	case "memory":
	case "sqlite":
		if g.Storage.SQLitePath == "" {
			errs = append(errs, FieldError{
				Field:   "governor.storage.sqlite_path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "governor.storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", g.Storage.Backend),
		})
	}
	if g.Storage.RetentionDays < 1 {
		errs = append(errs, FieldError{Field: "governor.storage.retention_days", Message: "must be at least 1"})
	}
	errs = append(errs, validateSchedule("governor.storage.cleanup_schedule", g.Storage.CleanupSchedule)...)

	return errs
}

func validateMonitor(m *MonitorConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePositiveDuration("monitor.interval", m.Interval)...)
	errs = append(errs, validateFraction("monitor.alert_threshold", m.AlertThreshold)...)
	errs = append(errs, validateFraction("monitor.emergency_threshold", m.EmergencyThreshold)...)
	errs = append(errs, validateFraction("monitor.recommend_threshold", m.RecommendThreshold)...)

	if m.EmergencyThreshold < m.AlertThreshold {
		errs = append(errs, FieldError{
			Field:   "monitor.emergency_threshold",
			Message: "must not be lower than monitor.alert_threshold",
		})
	}

	return errs
}

func validateAlerts(a *AlertsConfig) []FieldError {
	var errs []FieldError

	if a.Path == "" {
		errs = append(errs, FieldError{Field: "alerts.path", Message: "alerts path is required"})
	}
	if a.MaxAlerts < 1 {
		errs = append(errs, FieldError{Field: "alerts.max_alerts", Message: "must be at least 1"})
	}
	if a.Kafka.Enabled {
		if len(a.Kafka.Brokers) == 0 {
			errs = append(errs, FieldError{
				Field:   "alerts.kafka.brokers",
				Message: "at least one broker is required when kafka is enabled",
			})
		}
		if a.Kafka.Topic == "" {
			errs = append(errs, FieldError{Field: "alerts.kafka.topic", Message: "topic is required when kafka is enabled"})
		}
	}

	return errs
}

func validateSupervisor(s *SupervisorConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePositiveDuration("supervisor.interval", s.Interval)...)
	errs = append(errs, validatePositiveDuration("supervisor.max_data_age", s.MaxDataAge)...)
	errs = append(errs, validatePositiveDuration("supervisor.probe_timeout", s.ProbeTimeout)...)

	if s.ArtifactPath == "" {
		errs = append(errs, FieldError{Field: "supervisor.artifact_path", Message: "artifact path is required"})
	}

	if u, err := url.Parse(s.HealthURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "supervisor.health_url",
			Message: fmt.Sprintf("invalid URL %q", s.HealthURL),
		})
	}

	if len(s.Process.Require) == 0 {
		errs = append(errs, FieldError{
			Field:   "supervisor.process.require",
			Message: "at least one command line pattern is required",
		})
	}
	if len(s.Control.Command) == 0 && len(s.Spawn.Command) == 0 {
		errs = append(errs, FieldError{
			Field:   "supervisor.control.command",
			Message: "either a control command or a spawn command is required",
		})
	}

	return errs
}

func validateWatchdog(w *WatchdogConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePositiveDuration("watchdog.interval", w.Interval)...)
	errs = append(errs, validatePositiveDuration("watchdog.shutdown_threshold", w.ShutdownThreshold)...)

	if w.MinDatasets < 1 {
		errs = append(errs, FieldError{Field: "watchdog.min_datasets", Message: "must be at least 1"})
	}
	if w.MinDatasets > len(w.Datasets) {
		errs = append(errs, FieldError{
			Field:   "watchdog.min_datasets",
			Message: fmt.Sprintf("requires %d datasets but only %d are configured", w.MinDatasets, len(w.Datasets)),
		})
	}

	seen := make(map[string]bool)
	for i, d := range w.Datasets {
		field := fmt.Sprintf("watchdog.datasets[%d]", i)
		if d.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		} else if seen[d.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate dataset name %q", d.Name)})
		}
		seen[d.Name] = true

		if d.Path == "" {
			errs = append(errs, FieldError{Field: field + ".path", Message: "path is required"})
		}
		if d.MaxAge <= 0 {
			errs = append(errs, FieldError{Field: field + ".max_age", Message: "must be positive"})
		}
	}

	return errs
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(s.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", s.ListenAddress, err),
		})
	}
	errs = append(errs, validatePositiveDuration("server.shutdown_timeout", s.ShutdownTimeout)...)
	errs = append(errs, validateAuth(&s.Auth)...)

	return errs
}

// MinTokenLength is the shortest accepted control API token.
const MinTokenLength = 16

func validateAuth(a *AuthConfig) []FieldError {
	var errs []FieldError

	if a.Token != "" && len(a.Token) < MinTokenLength {
		errs = append(errs, FieldError{
			Field:   "server.auth.token",
			Message: fmt.Sprintf("token must be at least %d characters", MinTokenLength),
		})
	}

	seen := make(map[string]bool)
	for i, t := range a.Tokens {
		field := fmt.Sprintf("server.auth.tokens[%d]", i)
		if t.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		}
		if len(t.Token) < MinTokenLength {
			errs = append(errs, FieldError{
				Field:   field + ".token",
				Message: fmt.Sprintf("token must be at least %d characters", MinTokenLength),
			})
		}
		if t.Token != "" {
			if seen[t.Token] || t.Token == a.Token {
				errs = append(errs, FieldError{Field: field + ".token", Message: "duplicate token"})
			}
			seen[t.Token] = true
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if IsEnabled(cfg.Metrics.Enabled, DefaultMetricsEnabled) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled {
		validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.Sampler == "ratio" {
			errs = append(errs, validateFraction("telemetry.tracing.sample_ratio", cfg.Tracing.SampleRatio)...)
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
	}

	return errs
}

func validateFraction(field string, v float64) []FieldError {
	if v <= 0 || v > 1 {
		return []FieldError{{Field: field, Message: fmt.Sprintf("must be in (0, 1], got %v", v)}}
	}
	return nil
}

func validatePositiveDuration(field string, d time.Duration) []FieldError {
	if d <= 0 {
		return []FieldError{{Field: field, Message: fmt.Sprintf("must be positive, got %s", d)}}
	}
	return nil
}

func validateSchedule(field, spec string) []FieldError {
	if _, err := cron.ParseStandard(spec); err != nil {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid cron expression %q: %v", spec, err)}}
	}
	return nil
}
