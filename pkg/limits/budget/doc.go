// Package budget provides the daily spend ledger for paid data sources.
//
// # Overview
//
// The Ledger accumulates USD spend per source for the current day using
// exact decimal arithmetic. It does not reset itself: an external scheduler
// calls Reset at the day boundary, which keeps the ledger deterministic and
// easy to test.
//
// # Usage
//
//	ledger := budget.NewLedger("2026-03-14")
//	status := ledger.Check("santiment", cost, decimal.Zero, dailyCap)
//	if status.Allowed {
//	    // make the call, then on success:
//	    ledger.Add("santiment", cost)
//	}
//
// # Thread Safety
//
// All ledger operations are thread-safe using sync.RWMutex for concurrent access.
package budget
