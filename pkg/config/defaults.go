package config

import "time"

// Default values for configuration fields.
const (
	// Budget defaults
	DefaultDailyCostLimit = 10.00

	// Governor defaults
	DefaultWindowMode        = "minute_bucket"
	DefaultHighCostThreshold = 0.05
	DefaultWarnThreshold     = 0.80
	DefaultRetention         = 2 * time.Hour
	DefaultHistorySize       = 1000
	DefaultPerSourceCeiling  = 2.00
	DefaultMaxDailyCalls     = 100
	DefaultReservationTTL    = 2 * time.Minute
	DefaultResetSchedule     = "0 0 * * *"
	DefaultPruneSchedule     = "@every 1m"
	DefaultPersistSchedule   = "@every 30s"

	// Storage defaults
	DefaultStorageBackend         = "sqlite"
	DefaultStorageSQLitePath      = "data/warden.db"
	DefaultStorageBusyTimeout     = 5 * time.Second
	DefaultStorageRetentionDays   = 30
	DefaultStorageCleanupSchedule = "0 4 * * *"

	// Monitor defaults
	DefaultMonitorEnabled            = true
	DefaultMonitorInterval           = 5 * time.Minute
	DefaultMonitorAlertThreshold     = 0.80
	DefaultMonitorEmergencyThreshold = 0.95
	DefaultMonitorRecommendThreshold = 0.70
	DefaultErrorBackoff              = 60 * time.Second

	// Alert defaults
	DefaultAlertsPath        = "logs/api_alerts.json"
	DefaultAlertsMax         = 100
	DefaultKafkaTopic        = "warden.alerts"
	DefaultKafkaWriteTimeout = 10 * time.Second

	// Supervisor defaults
	DefaultSupervisorEnabled   = true
	DefaultSupervisorInterval  = 10 * time.Minute
	DefaultMaxDataAge          = 5 * time.Minute
	DefaultArtifactPath        = "correlation_data/hybrid_latest.json"
	DefaultTimestampField      = "timestamp"
	DefaultHealthURL           = "http://localhost:8080/api/prices"
	DefaultProbeTimeout        = 10 * time.Second
	DefaultTermGrace           = 10 * time.Second
	DefaultStartupGrace        = 15 * time.Second
	DefaultControlStopTimeout  = 30 * time.Second
	DefaultControlStartTimeout = 60 * time.Second
	DefaultControlSettle       = 5 * time.Second

	// Watchdog defaults
	DefaultWatchdogEnabled         = true
	DefaultWatchdogInterval        = 5 * time.Minute
	DefaultMinDatasets             = 3
	DefaultShutdownThreshold       = 30 * time.Minute
	DefaultWatchdogWatch           = true
	DefaultWatchdogDebounce        = 2 * time.Second
	DefaultEmergencyStopOnShutdown = true
	DefaultDatasetMaxAge           = 30 * time.Minute

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultJournalDir       = "logs"
	DefaultRedactKeys       = true
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "warden"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 1.0
	DefaultServiceName      = "warden"
)

// Default collections. These are functions so callers always get a fresh copy.

// DefaultDataSources returns the collector's stock API catalogue.
func DefaultDataSources() DataSourcesConfig {
	return DataSourcesConfig{
		FreeAPIs: map[string]APIConfig{
			"binance":    {Enabled: true, Priority: "high"},
			"coingecko":  {Enabled: true, Priority: "medium"},
			"coinbase":   {Enabled: true, Priority: "medium"},
			"fear_greed": {Enabled: true, Priority: "low"},
		},
		PaidAPIs: map[string]APIConfig{
			"santiment":   {Enabled: false, CostPerCall: 0.02, Priority: "high"},
			"whale_alert": {Enabled: false, CostPerCall: 0.05, Priority: "medium"},
		},
	}
}

// DefaultUpdateIntervals returns the collector's stock polling intervals in seconds.
func DefaultUpdateIntervals() map[string]int {
	return map[string]int{
		"fast_data": 60,
		"slow_data": 300,
		"very_slow": 3600,
	}
}

// DefaultDatasets returns the collector's three expected output files.
func DefaultDatasets() []DatasetConfig {
	return []DatasetConfig{
		{
			Name:          "hybrid",
			Path:          "correlation_data/hybrid_latest.json",
			MaxAge:        DefaultDatasetMaxAge,
			RequiredField: "symbols",
		},
		{
			Name:          "liquidation_analysis",
			Path:          "liquidation_data/liquidation_analysis_latest.json",
			MaxAge:        DefaultDatasetMaxAge,
			RequiredField: "analysis",
		},
		{
			Name:          "liquidation_heatmap",
			Path:          "liquidation_data/enhanced_liquidation_heatmap_latest.json",
			MaxAge:        DefaultDatasetMaxAge,
			RequiredField: "enhanced_analysis",
		},
	}
}

// ApplyDefaults fills every unset field of cfg with its default value.
// Explicitly configured values are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.DataSources.FreeAPIs == nil && cfg.DataSources.PaidAPIs == nil {
		cfg.DataSources = DefaultDataSources()
	}
	if cfg.DailyCostLimit == 0 {
		cfg.DailyCostLimit = DefaultDailyCostLimit
	}
	if cfg.UpdateIntervals == nil {
		cfg.UpdateIntervals = DefaultUpdateIntervals()
	}

	applyGovernorDefaults(&cfg.Governor)
	applyMonitorDefaults(&cfg.Monitor)
	applyAlertsDefaults(&cfg.Alerts)
	applySupervisorDefaults(&cfg.Supervisor)
	applyWatchdogDefaults(&cfg.Watchdog)
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyGovernorDefaults(g *GovernorConfig) {
	if g.WindowMode == "" {
		g.WindowMode = DefaultWindowMode
	}
	if g.HighCostThreshold == 0 {
		g.HighCostThreshold = DefaultHighCostThreshold
	}
	if g.WarnThreshold == 0 {
		g.WarnThreshold = DefaultWarnThreshold
	}
	if g.Retention == 0 {
		g.Retention = DefaultRetention
	}
	if g.HistorySize == 0 {
		g.HistorySize = DefaultHistorySize
	}
	if g.PerSourceCeiling == 0 {
		g.PerSourceCeiling = DefaultPerSourceCeiling
	}
	if g.MaxDailyCalls == 0 {
		g.MaxDailyCalls = DefaultMaxDailyCalls
	}
	if g.ReservationTTL == 0 {
		g.ReservationTTL = DefaultReservationTTL
	}
	if g.ResetSchedule == "" {
		g.ResetSchedule = DefaultResetSchedule
	}
	if g.PruneSchedule == "" {
		g.PruneSchedule = DefaultPruneSchedule
	}
	if g.PersistSchedule == "" {
		g.PersistSchedule = DefaultPersistSchedule
	}

	if g.Storage.Backend == "" {
		g.Storage.Backend = DefaultStorageBackend
	}
	if g.Storage.SQLitePath == "" {
		g.Storage.SQLitePath = DefaultStorageSQLitePath
	}
	if g.Storage.BusyTimeout == 0 {
		g.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if g.Storage.RetentionDays == 0 {
		g.Storage.RetentionDays = DefaultStorageRetentionDays
	}
	if g.Storage.CleanupSchedule == "" {
		g.Storage.CleanupSchedule = DefaultStorageCleanupSchedule
	}
}

func applyMonitorDefaults(m *MonitorConfig) {
	if m.Enabled == nil {
		m.Enabled = boolPtr(DefaultMonitorEnabled)
	}
	if m.Interval == 0 {
		m.Interval = DefaultMonitorInterval
	}
	if m.AlertThreshold == 0 {
		m.AlertThreshold = DefaultMonitorAlertThreshold
	}
	if m.EmergencyThreshold == 0 {
		m.EmergencyThreshold = DefaultMonitorEmergencyThreshold
	}
	if m.RecommendThreshold == 0 {
		m.RecommendThreshold = DefaultMonitorRecommendThreshold
	}
	if m.ErrorBackoff == 0 {
		m.ErrorBackoff = DefaultErrorBackoff
	}
}

func applyAlertsDefaults(a *AlertsConfig) {
	if a.Path == "" {
		a.Path = DefaultAlertsPath
	}
	if a.MaxAlerts == 0 {
		a.MaxAlerts = DefaultAlertsMax
	}
	if a.Kafka.Topic == "" {
		a.Kafka.Topic = DefaultKafkaTopic
	}
	if a.Kafka.WriteTimeout == 0 {
		a.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
}

func applySupervisorDefaults(s *SupervisorConfig) {
	if s.Enabled == nil {
		s.Enabled = boolPtr(DefaultSupervisorEnabled)
	}
	if s.Interval == 0 {
		s.Interval = DefaultSupervisorInterval
	}
	if s.MaxDataAge == 0 {
		s.MaxDataAge = DefaultMaxDataAge
	}
	if s.ArtifactPath == "" {
		s.ArtifactPath = DefaultArtifactPath
	}
	if s.TimestampField == "" {
		s.TimestampField = DefaultTimestampField
	}
	if s.HealthURL == "" {
		s.HealthURL = DefaultHealthURL
	}
	if s.ProbeTimeout == 0 {
		s.ProbeTimeout = DefaultProbeTimeout
	}
	if s.TermGrace == 0 {
		s.TermGrace = DefaultTermGrace
	}
	if s.StartupGrace == 0 {
		s.StartupGrace = DefaultStartupGrace
	}
	if s.ErrorBackoff == 0 {
		s.ErrorBackoff = DefaultErrorBackoff
	}

	if s.Process.Require == nil {
		s.Process.Require = []string{"agentceli", "python"}
	}
	if s.Process.Exclude == nil {
		s.Process.Exclude = []string{"watchdog", "warden"}
	}

	if s.Control.Command == nil {
		s.Control.Command = []string{"python3", "agentceli_control.py"}
	}
	if s.Control.StopTimeout == 0 {
		s.Control.StopTimeout = DefaultControlStopTimeout
	}
	if s.Control.StartTimeout == 0 {
		s.Control.StartTimeout = DefaultControlStartTimeout
	}
	if s.Control.Settle == 0 {
		s.Control.Settle = DefaultControlSettle
	}

	if s.Spawn.Command == nil {
		s.Spawn.Command = []string{"python3", "agentceli_hybrid.py"}
	}
}

func applyWatchdogDefaults(w *WatchdogConfig) {
	if w.Enabled == nil {
		w.Enabled = boolPtr(DefaultWatchdogEnabled)
	}
	if w.Interval == 0 {
		w.Interval = DefaultWatchdogInterval
	}
	if w.MinDatasets == 0 {
		w.MinDatasets = DefaultMinDatasets
	}
	if w.ShutdownThreshold == 0 {
		w.ShutdownThreshold = DefaultShutdownThreshold
	}
	if w.Watch == nil {
		w.Watch = boolPtr(DefaultWatchdogWatch)
	}
	if w.Debounce == 0 {
		w.Debounce = DefaultWatchdogDebounce
	}
	if w.EmergencyStopOnShutdown == nil {
		w.EmergencyStopOnShutdown = boolPtr(DefaultEmergencyStopOnShutdown)
	}
	if w.ErrorBackoff == 0 {
		w.ErrorBackoff = DefaultErrorBackoff
	}
	if w.Datasets == nil {
		w.Datasets = DefaultDatasets()
	}
	for i := range w.Datasets {
		if w.Datasets[i].MaxAge == 0 {
			w.Datasets[i].MaxAge = DefaultDatasetMaxAge
		}
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Logging.JournalDir == "" {
		t.Logging.JournalDir = DefaultJournalDir
	}
	if t.Logging.RedactKeys == nil {
		t.Logging.RedactKeys = boolPtr(DefaultRedactKeys)
	}
	if t.Metrics.Enabled == nil {
		t.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultServiceName
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
