package budget

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger accumulates today's spend per source.
//
// The ledger only grows through Add and only shrinks through Reset. Amounts
// are exact decimals so that, for example, fifty 0.02 charges sum to exactly
// 1.00 and compare equal to a 1.00 cap.
type Ledger struct {
	day   string
	spent map[string]decimal.Decimal

	mu sync.RWMutex
}

// NewLedger creates an empty ledger for day (YYYY-MM-DD).
func NewLedger(day string) *Ledger {
	return &Ledger{
		day:   day,
		spent: make(map[string]decimal.Decimal),
	}
}

// Add records amount against source. Non-positive amounts are ignored.
func (l *Ledger) Add(source string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.spent[source] = l.spent[source].Add(amount)
}

// Spent returns today's spend for source.
func (l *Ledger) Spent(source string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spent[source]
}

// Total returns today's spend summed over all sources.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, v := range l.spent {
		total = total.Add(v)
	}
	return total
}

// Day returns the day the ledger accumulates for.
func (l *Ledger) Day() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.day
}

// Check reports whether spending amount more on source stays within limit.
// pending is spend already promised to outstanding reservations.
//
// A zero-cost request always fits. Otherwise the request is rejected when
// spent+pending+amount exceeds limit; a zero limit therefore forbids any spend.
func (l *Ledger) Check(source string, amount, pending, limit decimal.Decimal) Status {
	used := l.Spent(source).Add(pending)

	status := Status{
		Allowed:    true,
		Limit:      limit,
		Used:       used,
		Remaining:  decimal.Max(decimal.Zero, limit.Sub(used)),
		Percentage: Percent(used, limit),
	}

	if amount.IsPositive() && used.Add(amount).GreaterThan(limit) {
		status.Allowed = false
		status.Reason = fmt.Sprintf("daily budget for %s exceeded: %s + %s > %s",
			source, used.StringFixed(2), amount.String(), limit.StringFixed(2))
	}

	return status
}

// Snapshot returns a copy of the per-source spend.
func (l *Ledger) Snapshot() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(l.spent))
	for k, v := range l.spent {
		out[k] = v
	}
	return out
}

// Reset clears every source and starts accumulating for day.
func (l *Ledger) Reset(day string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.day = day
	l.spent = make(map[string]decimal.Decimal)
}

// Restore replaces the ledger contents with a previously saved snapshot.
func (l *Ledger) Restore(day string, spent map[string]decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.day = day
	l.spent = make(map[string]decimal.Decimal, len(spent))
	for k, v := range spent {
		if v.IsPositive() {
			l.spent[k] = v
		}
	}
}
