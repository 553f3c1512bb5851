package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Type classifies what raised the alert.
type Type string

const (
	// TypeHighCost is raised for a single call costing more than the high cost threshold.
	TypeHighCost Type = "HIGH_COST"

	// TypeHighUsage is raised once per day when total spend crosses the alert threshold.
	TypeHighUsage Type = "HIGH_USAGE"

	// TypeSourceCritical is raised when a source is at 90% of its rate or cost limit.
	TypeSourceCritical Type = "API_CRITICAL"

	// TypeEmergencyStop is raised when the kill switch is engaged.
	TypeEmergencyStop Type = "EMERGENCY_STOP"

	// TypeRestart is raised after the supervisor restarts the collector.
	TypeRestart Type = "RESTART"

	// TypeRestartFailed is raised when every restart strategy failed.
	TypeRestartFailed Type = "RESTART_FAILED"

	// TypeDegraded is raised when dataset output first falls below the minimum.
	TypeDegraded Type = "DEGRADED"

	// TypeShutdown is raised when the watchdog shuts the collector down.
	TypeShutdown Type = "SHUTDOWN"
)

// Alert is a single notable event.
type Alert struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      Type             `json:"type"`
	Severity  Severity         `json:"severity"`
	Source    string           `json:"source,omitempty"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
	Message   string           `json:"message"`
}

// New builds an alert stamped with a fresh ID and the current time.
func New(typ Type, severity Severity, source, message string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      typ,
		Severity:  severity,
		Source:    source,
		Message:   message,
	}
}

// WithCost returns a copy of a carrying cost.
func (a Alert) WithCost(cost decimal.Decimal) Alert {
	a.Cost = &cost
	return a
}

// At returns a copy of a stamped with t.
func (a Alert) At(t time.Time) Alert {
	a.Timestamp = t
	return a
}

// Sink receives alerts.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, alert Alert) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// Discard is a Sink that drops every alert.
var Discard Sink = SinkFunc(func(context.Context, Alert) error { return nil })
