package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Backend defines the interface for ledger persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Save persists the ledger state for state.Day.
	// If state already exists for that day, it is replaced.
	Save(ctx context.Context, state *LedgerState) error

	// Load retrieves the ledger state for day (YYYY-MM-DD).
	// Returns nil if no state exists. Returns error on system failure.
	Load(ctx context.Context, day string) (*LedgerState, error)

	// Latest returns the most recently updated state, or nil if none exists.
	Latest(ctx context.Context) (*LedgerState, error)

	// List returns all stored states, newest day first.
	List(ctx context.Context) ([]*LedgerState, error)

	// Cleanup removes states last updated before olderThan.
	// Returns the number of entries deleted and any error.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// LedgerState is the persisted governor state for one day.
type LedgerState struct {
	// Day is the ledger day (YYYY-MM-DD, local time).
	Day string `json:"day"`

	// Costs is the spend per source in USD.
	Costs map[string]decimal.Decimal `json:"costs"`

	// Requests is the number of recorded requests per source.
	Requests map[string]int `json:"requests"`

	// Emergency is the kill switch flag. It is sticky across days.
	Emergency bool `json:"emergency"`

	// EmergencyReason explains why the kill switch was engaged.
	EmergencyReason string `json:"emergency_reason,omitempty"`

	// UpdatedAt is when this state was last saved.
	UpdatedAt time.Time `json:"updated_at"`

	// CreatedAt is when this day's state was first saved.
	CreatedAt time.Time `json:"created_at"`
}

// Total returns the spend summed over all sources.
func (s *LedgerState) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.Costs {
		total = total.Add(v)
	}
	return total
}

// clone returns a deep copy of s.
func (s *LedgerState) clone() *LedgerState {
	c := *s
	c.Costs = make(map[string]decimal.Decimal, len(s.Costs))
	for k, v := range s.Costs {
		c.Costs[k] = v
	}
	c.Requests = make(map[string]int, len(s.Requests))
	for k, v := range s.Requests {
		c.Requests[k] = v
	}
	return &c
}
