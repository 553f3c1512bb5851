// Package ratelimit counts requests per source over a one-minute window.
//
// # Overview
//
// Two counting strategies implement the Counter interface:
//
//   - Minute bucket (default): requests are grouped by calendar minute and
//     only the current minute is counted. A source can be admitted up to
//     2×RPM across the boundary between two minutes.
//   - Sliding log: every admitted request is a timestamp; the count is the
//     number of timestamps inside the trailing 60 seconds. There is no burst
//     at minute boundaries.
//
// # Usage
//
//	counter := ratelimit.New(ratelimit.ModeMinuteBucket, time.Minute)
//	if counter.Count(now) < rpm {
//	    counter.Add(now)
//	}
//
// # Thread Safety
//
// Counters are not safe for concurrent use. The governor owns one counter per
// source and serializes every access behind its own mutex so that a check and
// the matching Add happen under one lock.
package ratelimit
