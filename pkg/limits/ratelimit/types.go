package ratelimit

import (
	"fmt"
	"time"
)

// Mode selects the counting strategy.
type Mode string

const (
	// ModeSliding counts requests in the trailing window.
	ModeSliding Mode = "sliding"

	// ModeMinuteBucket counts requests in the current calendar minute.
	ModeMinuteBucket Mode = "minute_bucket"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSliding:
		return ModeSliding, nil
	case ModeMinuteBucket, "":
		return ModeMinuteBucket, nil
	default:
		return "", fmt.Errorf("unknown window mode %q", s)
	}
}

// Counter counts request timestamps inside a window.
type Counter interface {
	// Add records one request at t.
	Add(t time.Time)

	// Remove forgets one request previously added at t. It is a no-op if no
	// such request is recorded.
	Remove(t time.Time)

	// Count returns the number of requests that count against the limit at now.
	Count(now time.Time) int

	// Prune drops everything recorded before cutoff and returns how many
	// requests were dropped.
	Prune(cutoff time.Time) int

	// Reset clears the counter.
	Reset()
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the configured requests per minute.
	Limit int

	// Current is the number of requests already counted.
	Current int

	// Remaining is how many requests remain in the window.
	Remaining int
}

// Check compares the counter against limit at now.
func Check(c Counter, limit int, now time.Time) CheckResult {
	current := c.Count(now)
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return CheckResult{
		Allowed:   current < limit,
		Limit:     limit,
		Current:   current,
		Remaining: remaining,
	}
}

// New returns a counter for the given mode. Unknown modes fall back to the
// minute bucket.
func New(mode Mode, window time.Duration) Counter {
	if window <= 0 {
		window = time.Minute
	}
	if mode == ModeSliding {
		return NewSlidingLog(window)
	}
	return NewMinuteBucket(window)
}
