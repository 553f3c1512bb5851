package limits

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/limits/ratelimit"
)

// Source is one upstream API the collector calls. Sources are immutable once
// the governor is built.
type Source struct {
	// Name identifies the source (binance, santiment, ...).
	Name string `json:"name"`

	// RPM is the requests-per-minute limit.
	RPM int `json:"rpm"`

	// CostPerCall is the configured price of one call in USD.
	CostPerCall decimal.Decimal `json:"cost_per_call"`

	// DailyCostLimit is the per-source daily cap in USD. Zero forbids any spend.
	DailyCostLimit decimal.Decimal `json:"daily_cost_limit"`

	// Priority is informational.
	Priority string `json:"priority,omitempty"`

	// Paid marks sources that charge per call.
	Paid bool `json:"paid"`
}

// RequestRecord is one completed call as reported by the collector.
type RequestRecord struct {
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Cost      decimal.Decimal `json:"cost"`
	Success   bool            `json:"success"`
}

// Reservation is a provisional claim of one rate slot and a cost amount.
// It is settled by Governor.Commit or undone by Governor.Release.
type Reservation struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Cost      decimal.Decimal `json:"cost"`
	At        time.Time       `json:"at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Health classifies how close a source is to its limits.
type Health string

const (
	// HealthOK means both rate and cost usage are below 70%.
	HealthOK Health = "OK"

	// HealthWarning means rate or cost usage reached 70%.
	HealthWarning Health = "WARNING"

	// HealthCritical means rate or cost usage reached 90%.
	HealthCritical Health = "CRITICAL"
)

// Usage thresholds, in percent, for Health classification.
const (
	warningPercent  = 70.0
	criticalPercent = 90.0
)

// Classify returns the health for the given rate and cost usage percentages.
func Classify(rpmPercent, costPercent float64) Health {
	switch {
	case rpmPercent >= criticalPercent || costPercent >= criticalPercent:
		return HealthCritical
	case rpmPercent >= warningPercent || costPercent >= warningPercent:
		return HealthWarning
	default:
		return HealthOK
	}
}

// Status is a consistent snapshot of the governor.
type Status struct {
	Timestamp       time.Time               `json:"timestamp"`
	Day             string                  `json:"day"`
	Emergency       bool                    `json:"emergency_stop"`
	EmergencyReason string                  `json:"emergency_reason,omitempty"`
	EmergencySince  *time.Time              `json:"emergency_since,omitempty"`
	TotalDailyCost  decimal.Decimal         `json:"total_daily_cost"`
	DailyLimit      decimal.Decimal         `json:"daily_limit"`
	UsagePercent    float64                 `json:"usage_percentage"`
	WindowMode      ratelimit.Mode          `json:"window_mode"`
	Reservations    int                     `json:"reservations"`
	Sources         map[string]SourceStatus `json:"apis"`
}

// Usage returns the global usage as a fraction (0.95 == 95%).
func (s Status) Usage() float64 {
	return s.UsagePercent / 100
}

// SourceStatus is the per-source part of Status.
type SourceStatus struct {
	RequestsInWindow int             `json:"requests_this_minute"`
	RPMLimit         int             `json:"rpm_limit"`
	RPMUsagePercent  float64         `json:"rpm_usage_percent"`
	DailyCost        decimal.Decimal `json:"daily_cost"`
	DailyCostLimit   decimal.Decimal `json:"daily_cost_limit"`
	CostUsagePercent float64         `json:"cost_usage_percent"`
	RequestsToday    int             `json:"requests_today"`
	SuccessRate      float64         `json:"success_rate"`
	Pending          decimal.Decimal `json:"pending_cost"`
	Health           Health          `json:"status"`
}

// Error types for limit violations and governor misuse.
var (
	// ErrEmergencyStop is returned while the kill switch is engaged.
	ErrEmergencyStop = errors.New("emergency stop active")

	// ErrRateLimitExceeded is returned when a source's RPM is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrBudgetExceeded is returned when a per-source or global daily cap is exhausted.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrUnknownReservation is returned when committing or releasing an ID
	// that is not outstanding (already settled, expired, or never issued).
	ErrUnknownReservation = errors.New("unknown reservation")

	// ErrInvalidCost is returned for negative costs.
	ErrInvalidCost = errors.New("invalid cost")
)

// Limit types carried by LimitError.
const (
	LimitEmergency    = "emergency"
	LimitGlobalBudget = "global_budget"
	LimitRate         = "rate_limit"
	LimitSourceBudget = "source_budget"
)

// LimitError provides detailed context about a limit violation.
// It wraps one of the sentinel errors so errors.Is works.
type LimitError struct {
	// Type is the limit type (rate_limit, source_budget, ...).
	Type string

	// Source is the data source the request was for.
	Source string

	// Limit is the configured limit value.
	Limit any

	// Current is the value that hit the limit.
	Current any

	// Reason is the human-readable rejection reason.
	Reason string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s limit exceeded for %s: current=%v, limit=%v",
		e.Type, e.Source, e.Current, e.Limit)
}

// Unwrap returns the underlying error for error wrapping.
func (e *LimitError) Unwrap() error {
	return e.Err
}
