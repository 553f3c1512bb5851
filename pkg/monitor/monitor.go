package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/telemetry/logging"
)

// EmergencyReason is the kill switch reason used when usage crosses the
// emergency threshold.
const EmergencyReason = "95% daily limit reached"

// dedupRetention is how long an alert key is remembered.
const dedupRetention = 48 * time.Hour

// Governor is the part of limits.Governor the monitor reads and acts on.
type Governor interface {
	Status() limits.Status
	EmergencyStopAll(reason string)
}

// Config holds the monitor thresholds.
type Config struct {
	// AlertThreshold is the usage fraction that raises HIGH_USAGE (0.80).
	AlertThreshold float64

	// EmergencyThreshold is the usage fraction that engages the kill switch (0.95).
	EmergencyThreshold float64

	// RecommendThreshold is the usage fraction above which slowing down is
	// recommended (0.70).
	RecommendThreshold float64

	// UpdateIntervals are the collector's polling intervals in seconds.
	UpdateIntervals map[string]int
}

// NewConfig extracts the monitor settings from the application config.
func NewConfig(cfg *config.Config) Config {
	return Config{
		AlertThreshold:     cfg.Monitor.AlertThreshold,
		EmergencyThreshold: cfg.Monitor.EmergencyThreshold,
		RecommendThreshold: cfg.Monitor.RecommendThreshold,
		UpdateIntervals:    cfg.UpdateIntervals,
	}
}

// Monitor watches governor usage, raises deduplicated alerts and engages the
// kill switch near the daily ceiling.
type Monitor struct {
	gov    Governor
	cfg    Config
	sink   alerts.Sink
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// New creates a monitor. sink may be nil.
func New(gov Governor, cfg Config, sink alerts.Sink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = alerts.Discard
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 0.80
	}
	if cfg.EmergencyThreshold <= 0 {
		cfg.EmergencyThreshold = 0.95
	}
	if cfg.RecommendThreshold <= 0 {
		cfg.RecommendThreshold = 0.70
	}
	return &Monitor{
		gov:    gov,
		cfg:    cfg,
		sink:   sink,
		logger: logger.With("component", "monitor"),
		now:    time.Now,
		sent:   make(map[string]time.Time),
	}
}

// CheckAndAlert runs one monitoring cycle against the governor's status.
//
// Usage at or above the alert threshold raises one HIGH_USAGE alert per day.
// Each CRITICAL source raises at most one API_CRITICAL alert per minute.
// Usage at or above the emergency threshold engages the kill switch unless it
// is already engaged. Alert delivery errors are joined and returned after the
// whole cycle has run.
func (m *Monitor) CheckAndAlert(ctx context.Context) error {
	now := m.now()
	status := m.gov.Status()
	usage := status.Usage()

	m.forget(now)

	var pending []alerts.Alert

	if usage >= m.cfg.AlertThreshold {
		key := "high_usage:" + now.Format("2006-01-02")
		if m.claim(key, now) {
			pending = append(pending, alerts.New(alerts.TypeHighUsage, alerts.SeverityHigh, "",
				fmt.Sprintf("Daily cost usage at %.1f%%: $%s of $%s",
					status.UsagePercent, status.TotalDailyCost.StringFixed(2), status.DailyLimit.StringFixed(2)),
			).At(now))
		}
	}

	for _, name := range sortedSources(status) {
		src := status.Sources[name]
		if src.Health != limits.HealthCritical {
			continue
		}
		key := name + ":critical:" + now.Format("2006-01-02T15:04")
		if !m.claim(key, now) {
			continue
		}
		pending = append(pending, alerts.New(alerts.TypeSourceCritical, alerts.SeverityCritical, name,
			fmt.Sprintf("%s at critical usage: RPM %.1f%%, cost %.1f%%", name, src.RPMUsagePercent, src.CostUsagePercent),
		).At(now))
	}

	if usage >= m.cfg.EmergencyThreshold && !status.Emergency {
		m.gov.EmergencyStopAll(EmergencyReason)
		logging.Critical(m.logger, "daily limit nearly exhausted, emergency stop engaged",
			"usage_percent", status.UsagePercent,
			"total", status.TotalDailyCost.StringFixed(4),
		)
		pending = append(pending, alerts.New(alerts.TypeEmergencyStop, alerts.SeverityCritical, "",
			fmt.Sprintf("Emergency stop activated: %s ($%s of $%s)",
				EmergencyReason, status.TotalDailyCost.StringFixed(2), status.DailyLimit.StringFixed(2)),
		).WithCost(status.TotalDailyCost).At(now))
	}

	var errs []error
	for _, a := range pending {
		if err := m.sink.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("send %s alert: %w", a.Type, err))
		}
	}

	m.logger.Debug("usage checked",
		"usage_percent", status.UsagePercent,
		"alerts", len(pending),
		"emergency", status.Emergency || usage >= m.cfg.EmergencyThreshold,
	)
	return errors.Join(errs...)
}

// claim records key as sent and reports whether it was new.
func (m *Monitor) claim(key string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[key]; ok {
		return false
	}
	m.sent[key] = now
	return true
}

// forget drops dedup keys older than dedupRetention.
func (m *Monitor) forget(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, at := range m.sent {
		if now.Sub(at) > dedupRetention {
			delete(m.sent, key)
		}
	}
}

func sortedSources(s limits.Status) []string {
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
