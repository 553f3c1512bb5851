package config

import "time"

// Config is the root configuration structure for Warden.
// It contains the collector's data source catalogue, the governor limits,
// the three health loops, the control API and telemetry settings.
type Config struct {
	// DataSources lists the external APIs the collector calls, split into
	// free and paid groups. Paid APIs carry a per-call cost.
	DataSources DataSourcesConfig `yaml:"data_sources" ignored:"true"`

	// DailyCostLimit is the global ceiling on summed daily spend in USD.
	// When total spend reaches this value every request is rejected.
	// Default: 10.00
	DailyCostLimit float64 `yaml:"daily_cost_limit" envconfig:"daily_cost_limit"`

	// UpdateIntervals are the collector's polling intervals in seconds keyed
	// by tier (fast_data, slow_data, very_slow). Warden only reads them to
	// build recommendations.
	UpdateIntervals map[string]int `yaml:"update_intervals" ignored:"true"`

	// Governor configures per-source rate and cost limiting.
	Governor GovernorConfig `yaml:"governor" envconfig:"governor"`

	// Monitor configures the usage monitor loop.
	Monitor MonitorConfig `yaml:"monitor" envconfig:"monitor"`

	// Alerts configures where alerts are stored and published.
	Alerts AlertsConfig `yaml:"alerts" envconfig:"alerts"`

	// Supervisor configures the collector process supervisor loop.
	Supervisor SupervisorConfig `yaml:"supervisor" envconfig:"supervisor"`

	// Watchdog configures the dataset health watchdog loop.
	Watchdog WatchdogConfig `yaml:"watchdog" envconfig:"watchdog"`

	// Server configures the HTTP control API.
	Server ServerConfig `yaml:"server" envconfig:"server"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"telemetry"`
}

// DataSourcesConfig groups the collector's upstream APIs.
type DataSourcesConfig struct {
	// FreeAPIs are APIs without a per-call cost. Keys are source names.
	FreeAPIs map[string]APIConfig `yaml:"free_apis"`

	// PaidAPIs are APIs billed per call. Keys are source names.
	PaidAPIs map[string]APIConfig `yaml:"paid_apis"`
}

// APIConfig describes one upstream API.
type APIConfig struct {
	// Enabled controls whether the source is registered with the governor.
	Enabled bool `yaml:"enabled"`

	// Key is the API credential. Warden never uses it; it is redacted from logs.
	Key string `yaml:"key"`

	// CostPerCall is the USD price of one call. Zero for free APIs.
	CostPerCall float64 `yaml:"cost_per_call"`

	// Priority is informational (high, medium, low).
	Priority string `yaml:"priority"`
}

// GovernorConfig contains configuration for the cost governor.
type GovernorConfig struct {
	// WindowMode selects how requests per minute are counted.
	// Valid values: "sliding" (trailing 60s), "minute_bucket" (calendar minute).
	// Default: "minute_bucket"
	WindowMode string `yaml:"window_mode" envconfig:"window_mode"`

	// HighCostThreshold is the per-call cost above which a HIGH_COST alert is raised.
	// Default: 0.05
	HighCostThreshold float64 `yaml:"high_cost_threshold" envconfig:"high_cost_threshold"`

	// WarnThreshold is the fraction of the global limit at which each
	// recorded outcome logs a warning.
	// Default: 0.80
	WarnThreshold float64 `yaml:"warn_threshold" envconfig:"warn_threshold"`

	// Retention is how long request history is kept before PruneOld drops it.
	// Default: 2h
	Retention time.Duration `yaml:"retention" envconfig:"retention"`

	// HistorySize bounds the per-source request history.
	// Default: 1000
	HistorySize int `yaml:"history_size" envconfig:"history_size"`

	// PerSourceCeiling is the USD ceiling used to derive a paid source's daily cap.
	// Default: 2.00
	PerSourceCeiling float64 `yaml:"per_source_ceiling" envconfig:"per_source_ceiling"`

	// MaxDailyCalls caps the derived number of daily calls for a paid source.
	// Default: 100
	MaxDailyCalls int `yaml:"max_daily_calls" envconfig:"max_daily_calls"`

	// ReservationTTL is how long an uncommitted reservation holds its slot.
	// Default: 2m
	ReservationTTL time.Duration `yaml:"reservation_ttl" envconfig:"reservation_ttl"`

	// ResetSchedule is the cron expression for the daily ledger reset.
	// Default: "0 0 * * *"
	ResetSchedule string `yaml:"reset_schedule" envconfig:"reset_schedule"`

	// PruneSchedule is the cron expression for pruning old history.
	// Default: "@every 1m"
	PruneSchedule string `yaml:"prune_schedule" envconfig:"prune_schedule"`

	// PersistSchedule is the cron expression for saving ledger snapshots.
	// Default: "@every 30s"
	PersistSchedule string `yaml:"persist_schedule" envconfig:"persist_schedule"`

	// Sources holds explicit per-source limit overrides. They win over both
	// the built-in table and the values derived from paid API prices.
	Sources map[string]SourceOverride `yaml:"sources" ignored:"true"`

	// Storage configures ledger persistence.
	Storage StorageConfig `yaml:"storage" envconfig:"storage"`
}

// SourceOverride pins the limits for one source.
type SourceOverride struct {
	// RPM is the requests-per-minute limit. Zero keeps the derived value.
	RPM int `yaml:"rpm"`

	// DailyCostLimit is the per-source daily cap in USD. Zero keeps the derived value.
	DailyCostLimit float64 `yaml:"daily_cost_limit"`
}

// StorageConfig configures ledger snapshot persistence.
type StorageConfig struct {
	// Backend selects the storage backend.
	// Valid values: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend" envconfig:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	// Default: "data/warden.db"
	SQLitePath string `yaml:"sqlite_path" envconfig:"sqlite_path"`

	// BusyTimeout is the sqlite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"busy_timeout"`

	// RetentionDays is how many days of ledger snapshots are kept.
	// Default: 30
	RetentionDays int `yaml:"retention_days" envconfig:"retention_days"`

	// CleanupSchedule is the cron expression for deleting old snapshots.
	// Default: "0 4 * * *"
	CleanupSchedule string `yaml:"cleanup_schedule" envconfig:"cleanup_schedule"`
}

// MonitorConfig contains configuration for the usage monitor.
type MonitorConfig struct {
	// Enabled controls whether the monitor loop runs.
	// Default: true
	Enabled *bool `yaml:"enabled" envconfig:"enabled"`

	// Interval is the time between monitor cycles.
	// Default: 5m
	Interval time.Duration `yaml:"interval" envconfig:"interval"`

	// AlertThreshold is the usage fraction that raises a HIGH_USAGE alert.
	// Default: 0.80
	AlertThreshold float64 `yaml:"alert_threshold" envconfig:"alert_threshold"`

	// EmergencyThreshold is the usage fraction that engages the kill switch.
	// Default: 0.95
	EmergencyThreshold float64 `yaml:"emergency_threshold" envconfig:"emergency_threshold"`

	// RecommendThreshold is the usage fraction above which the monitor
	// recommends slowing the collector down.
	// Default: 0.70
	RecommendThreshold float64 `yaml:"recommend_threshold" envconfig:"recommend_threshold"`

	// ErrorBackoff is the pause after a failed cycle.
	// Default: 60s
	ErrorBackoff time.Duration `yaml:"error_backoff" envconfig:"error_backoff"`
}

// AlertsConfig configures alert storage and publishing.
type AlertsConfig struct {
	// Path is the JSON file holding recent alerts.
	// Default: "logs/api_alerts.json"
	Path string `yaml:"path" envconfig:"path"`

	// MaxAlerts is the number of alerts kept in the file.
	// Default: 100
	MaxAlerts int `yaml:"max_alerts" envconfig:"max_alerts"`

	// Kafka configures an optional Kafka topic that receives every alert.
	Kafka KafkaConfig `yaml:"kafka" envconfig:"kafka"`
}

// KafkaConfig configures the Kafka alert sink.
type KafkaConfig struct {
	// Enabled turns the sink on.
	// Default: false
	Enabled bool `yaml:"enabled" envconfig:"enabled"`

	// Brokers is the list of bootstrap brokers (host:port).
	Brokers []string `yaml:"brokers" envconfig:"brokers"`

	// Topic receives alerts as JSON, keyed by source.
	// Default: "warden.alerts"
	Topic string `yaml:"topic" envconfig:"topic"`

	// WriteTimeout bounds a single publish.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"write_timeout"`
}

// SupervisorConfig contains configuration for the collector process supervisor.
type SupervisorConfig struct {
	// Enabled controls whether the supervisor loop runs.
	// Default: true
	Enabled *bool `yaml:"enabled" envconfig:"enabled"`

	// Interval is the time between health checks.
	// Default: 10m
	Interval time.Duration `yaml:"interval" envconfig:"interval"`

	// MaxDataAge is the freshness bound for the artifact and the endpoint.
	// Default: 5m
	MaxDataAge time.Duration `yaml:"max_data_age" envconfig:"max_data_age"`

	// ArtifactPath is the collector's primary output file.
	// Default: "correlation_data/hybrid_latest.json"
	ArtifactPath string `yaml:"artifact_path" envconfig:"artifact_path"`

	// TimestampField is the JSON path of the embedded timestamp in both the
	// artifact and the endpoint response.
	// Default: "timestamp"
	TimestampField string `yaml:"timestamp_field" envconfig:"timestamp_field"`

	// HealthURL is the collector's live HTTP endpoint.
	// Default: "http://localhost:8080/api/prices"
	HealthURL string `yaml:"health_url" envconfig:"health_url"`

	// ProbeTimeout bounds each individual health signal.
	// Default: 10s
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"probe_timeout"`

	// TermGrace is how long terminated processes get before they are killed.
	// Default: 10s
	TermGrace time.Duration `yaml:"term_grace" envconfig:"term_grace"`

	// StartupGrace is how long a spawned process must survive to count as started.
	// Default: 15s
	StartupGrace time.Duration `yaml:"startup_grace" envconfig:"startup_grace"`

	// ErrorBackoff is the pause after a failed cycle.
	// Default: 60s
	ErrorBackoff time.Duration `yaml:"error_backoff" envconfig:"error_backoff"`

	// Process selects which running processes belong to the collector.
	Process ProcessMatchConfig `yaml:"process" envconfig:"process"`

	// Control is the collector's own control script.
	Control ControlConfig `yaml:"control" envconfig:"control"`

	// Spawn is the collector entry point used when the control script fails.
	Spawn SpawnConfig `yaml:"spawn" envconfig:"spawn"`
}

// ProcessMatchConfig matches processes by command line substrings.
type ProcessMatchConfig struct {
	// Require lists substrings that must all appear in the command line.
	// Default: ["agentceli", "python"]
	Require []string `yaml:"require" envconfig:"require"`

	// Exclude lists substrings that disqualify a process.
	// Default: ["watchdog", "warden"]
	Exclude []string `yaml:"exclude" envconfig:"exclude"`
}

// ControlConfig describes the collector control command.
type ControlConfig struct {
	// Command is the argv prefix; "stop", "start" or "restart" is appended.
	// Default: ["python3", "agentceli_control.py"]
	Command []string `yaml:"command" envconfig:"command"`

	// Dir is the working directory. Empty means the current directory.
	Dir string `yaml:"dir" envconfig:"dir"`

	// StopTimeout bounds the stop command.
	// Default: 30s
	StopTimeout time.Duration `yaml:"stop_timeout" envconfig:"stop_timeout"`

	// StartTimeout bounds the start command.
	// Default: 60s
	StartTimeout time.Duration `yaml:"start_timeout" envconfig:"start_timeout"`

	// Settle is the pause between stop and start.
	// Default: 5s
	Settle time.Duration `yaml:"settle" envconfig:"settle"`
}

// SpawnConfig describes how to launch the collector directly.
type SpawnConfig struct {
	// Command is the argv of the collector entry point.
	// Default: ["python3", "agentceli_hybrid.py"]
	Command []string `yaml:"command" envconfig:"command"`

	// Dir is the working directory. Empty means the current directory.
	Dir string `yaml:"dir" envconfig:"dir"`

	// LogPath receives the spawned process's stdout and stderr.
	// Empty discards the output.
	LogPath string `yaml:"log_path" envconfig:"log_path"`
}

// WatchdogConfig contains configuration for the dataset health watchdog.
type WatchdogConfig struct {
	// Enabled controls whether the watchdog loop runs.
	// Default: true
	Enabled *bool `yaml:"enabled" envconfig:"enabled"`

	// Interval is the time between dataset checks.
	// Default: 5m
	Interval time.Duration `yaml:"interval" envconfig:"interval"`

	// MinDatasets is the number of valid datasets required to stay healthy.
	// Default: 3
	MinDatasets int `yaml:"min_datasets" envconfig:"min_datasets"`

	// ShutdownThreshold is how long output may stay degraded before the
	// collector is shut down.
	// Default: 30m
	ShutdownThreshold time.Duration `yaml:"shutdown_threshold" envconfig:"shutdown_threshold"`

	// Watch re-checks datasets as soon as their files change.
	// Default: true
	Watch *bool `yaml:"watch" envconfig:"watch"`

	// Debounce coalesces bursts of file events into one check.
	// Default: 2s
	Debounce time.Duration `yaml:"debounce" envconfig:"debounce"`

	// EmergencyStopOnShutdown engages the governor kill switch when the
	// watchdog shuts the collector down.
	// Default: true
	EmergencyStopOnShutdown *bool `yaml:"emergency_stop_on_shutdown" envconfig:"emergency_stop_on_shutdown"`

	// ErrorBackoff is the pause after a failed cycle.
	// Default: 60s
	ErrorBackoff time.Duration `yaml:"error_backoff" envconfig:"error_backoff"`

	// Datasets are the expected collector outputs.
	Datasets []DatasetConfig `yaml:"datasets" ignored:"true"`
}

// DatasetConfig describes one expected output file.
type DatasetConfig struct {
	// Name identifies the dataset in logs and status.
	Name string `yaml:"name"`

	// Path is the file path.
	Path string `yaml:"path"`

	// MaxAge is the freshness bound.
	// Default: 30m
	MaxAge time.Duration `yaml:"max_age"`

	// RequiredField is a JSON path that must hold a non-empty value.
	RequiredField string `yaml:"required_field"`
}

// ServerConfig contains configuration for the HTTP control API.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address" envconfig:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout" envconfig:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"shutdown_timeout"`

	// Auth protects the /v1 routes with bearer tokens.
	Auth AuthConfig `yaml:"auth" envconfig:"auth"`
}

// AuthConfig lists the bearer tokens accepted by the control API. With no
// tokens configured the API is open, which suits a loopback listener.
type AuthConfig struct {
	// Token is an unnamed operator token, convenient to set from the
	// environment (WARDEN_SERVER_AUTH_TOKEN).
	Token string `yaml:"token" envconfig:"token"`

	// Tokens are named tokens. A read-only token may only call GET routes.
	Tokens []TokenConfig `yaml:"tokens" ignored:"true"`
}

// TokenConfig is one named bearer token.
type TokenConfig struct {
	Name     string `yaml:"name"`
	Token    string `yaml:"token"`
	ReadOnly bool   `yaml:"read_only"`
}

// Enabled reports whether any token is configured.
func (a AuthConfig) Enabled() bool {
	return a.Token != "" || len(a.Tokens) > 0
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// Logging configures structured logs and component journals.
	Logging LoggingConfig `yaml:"logging" envconfig:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" envconfig:"metrics"`

	// Tracing configures OpenTelemetry spans for API requests and loop cycles.
	Tracing TracingConfig `yaml:"tracing" envconfig:"tracing"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level" envconfig:"level"`

	// Format is the log encoding: json or text.
	// Default: "json"
	Format string `yaml:"format" envconfig:"format"`

	// AddSource adds file:line to log records.
	// Default: false
	AddSource bool `yaml:"add_source" envconfig:"add_source"`

	// JournalDir holds the per-component journal files. Empty disables journals.
	// Default: "logs"
	JournalDir string `yaml:"journal_dir" envconfig:"journal_dir"`

	// RedactKeys masks configured API keys in log output.
	// Default: true
	RedactKeys *bool `yaml:"redact_keys" envconfig:"redact_keys"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on metric collection and the /metrics endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled" envconfig:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path" envconfig:"path"`

	// Namespace prefixes every metric name.
	// Default: "warden"
	Namespace string `yaml:"namespace" envconfig:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns span export on.
	// Default: false
	Enabled bool `yaml:"enabled" envconfig:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint" envconfig:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" envconfig:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" envconfig:"timeout"`

	// Sampler selects the sampling strategy.
	// Valid values: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler" envconfig:"sampler"`

	// SampleRatio is the sampled fraction for the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" envconfig:"sample_ratio"`

	// ServiceName is the service.name resource attribute.
	// Default: "warden"
	ServiceName string `yaml:"service_name" envconfig:"service_name"`
}

// IsEnabled reports whether the pointer flag is set, falling back to def when unset.
func IsEnabled(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// APIKeys returns every configured credential, for log redaction.
func (c *Config) APIKeys() []string {
	var keys []string
	for _, group := range []map[string]APIConfig{c.DataSources.FreeAPIs, c.DataSources.PaidAPIs} {
		for _, api := range group {
			if api.Key != "" {
				keys = append(keys, api.Key)
			}
		}
	}
	return keys
}

// Secrets returns every credential that must never reach a log line: the
// data source API keys and the control API tokens.
func (c *Config) Secrets() []string {
	secrets := c.APIKeys()
	if c.Server.Auth.Token != "" {
		secrets = append(secrets, c.Server.Auth.Token)
	}
	for _, t := range c.Server.Auth.Tokens {
		if t.Token != "" {
			secrets = append(secrets, t.Token)
		}
	}
	return secrets
}
