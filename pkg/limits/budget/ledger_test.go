package budget

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedger_ExactSum(t *testing.T) {
	ledger := NewLedger("2026-03-14")
	cost := d("0.02")

	for i := 0; i < 50; i++ {
		ledger.Add("santiment", cost)
	}

	if !ledger.Spent("santiment").Equal(d("1.00")) {
		t.Errorf("expected exactly 1.00, got %s", ledger.Spent("santiment"))
	}

	status := ledger.Check("santiment", cost, decimal.Zero, d("1.00"))
	if status.Allowed {
		t.Error("expected 51st charge to exceed the 1.00 cap")
	}
	if status.Percentage != 100 {
		t.Errorf("expected 100%%, got %v", status.Percentage)
	}
}

func TestLedger_CheckBoundary(t *testing.T) {
	ledger := NewLedger("2026-03-14")
	ledger.Add("whale_alert", d("4.95"))

	tests := []struct {
		name    string
		amount  string
		pending string
		limit   string
		allowed bool
	}{
		{"fits exactly", "0.05", "0", "5.00", true},
		{"one cent over", "0.06", "0", "5.00", false},
		{"pending pushes over", "0.05", "0.01", "5.00", false},
		{"zero cost always fits", "0", "1.00", "5.00", true},
		{"zero limit forbids spend", "0.01", "0", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := ledger.Check("whale_alert", d(tt.amount), d(tt.pending), d(tt.limit))
			if status.Allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %+v", tt.allowed, status)
			}
			if !status.Allowed && status.Reason == "" {
				t.Error("expected a reason for rejection")
			}
		})
	}
}

func TestLedger_IgnoresNonPositive(t *testing.T) {
	ledger := NewLedger("2026-03-14")
	ledger.Add("binance", decimal.Zero)
	ledger.Add("binance", d("-1"))

	if !ledger.Total().IsZero() {
		t.Errorf("expected zero total, got %s", ledger.Total())
	}
	if len(ledger.Snapshot()) != 0 {
		t.Error("expected no entries for ignored amounts")
	}
}

func TestLedger_ResetAndRestore(t *testing.T) {
	ledger := NewLedger("2026-03-14")
	ledger.Add("santiment", d("0.40"))
	ledger.Add("whale_alert", d("1.10"))

	if !ledger.Total().Equal(d("1.50")) {
		t.Errorf("expected total 1.50, got %s", ledger.Total())
	}

	snap := ledger.Snapshot()
	ledger.Reset("2026-03-15")

	if ledger.Day() != "2026-03-15" || !ledger.Total().IsZero() {
		t.Errorf("reset failed: day=%s total=%s", ledger.Day(), ledger.Total())
	}

	ledger.Restore("2026-03-14", snap)
	if !ledger.Spent("whale_alert").Equal(d("1.10")) {
		t.Errorf("restore failed: %s", ledger.Spent("whale_alert"))
	}

	// Mutating the snapshot must not affect the ledger
	snap["santiment"] = d("99")
	if !ledger.Spent("santiment").Equal(d("0.40")) {
		t.Error("ledger shares state with snapshot")
	}
}

func TestLedger_ConcurrentAdd(t *testing.T) {
	ledger := NewLedger("2026-03-14")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.Add("santiment", d("0.01"))
		}()
	}
	wg.Wait()

	if !ledger.Total().Equal(d("1.00")) {
		t.Errorf("expected 1.00, got %s", ledger.Total())
	}
}

func TestPercent(t *testing.T) {
	if p := Percent(d("7.5"), d("10")); p != 75 {
		t.Errorf("expected 75, got %v", p)
	}
	if p := Percent(d("1"), decimal.Zero); p != 0 {
		t.Errorf("expected 0 for zero limit, got %v", p)
	}
}
