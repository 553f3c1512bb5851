package budget

import "github.com/shopspring/decimal"

// Status contains the budget status of one source for the current day.
type Status struct {
	// Allowed indicates if the proposed spend fits within the cap.
	Allowed bool

	// Reason explains why spending was rejected (if Allowed=false).
	Reason string

	// Limit is the configured daily cap in USD.
	Limit decimal.Decimal

	// Used is the amount spent today in USD, including pending reservations.
	Used decimal.Decimal

	// Remaining is the budget remaining in USD.
	Remaining decimal.Decimal

	// Percentage is the percentage of budget used (0-100).
	Percentage float64
}

// Percent returns used as a percentage of limit, or 0 when limit is not positive.
func Percent(used, limit decimal.Decimal) float64 {
	if !limit.IsPositive() {
		return 0
	}
	return used.Div(limit).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
