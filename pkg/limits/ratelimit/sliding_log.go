package ratelimit

import (
	"sort"
	"time"
)

// SlidingLog counts requests in the trailing window.
//
// # Algorithm
//
//  1. Append the request timestamp (timestamps are kept sorted)
//  2. On Count, drop timestamps at or before now-window
//  3. The count is the number of remaining timestamps
//
// Memory is bounded by the source's RPM since at most RPM timestamps are
// admitted per window.
type SlidingLog struct {
	window time.Duration
	stamps []time.Time
}

// NewSlidingLog creates a sliding log over window.
func NewSlidingLog(window time.Duration) *SlidingLog {
	return &SlidingLog{window: window}
}

// Add records a request at t.
func (s *SlidingLog) Add(t time.Time) {
	// Requests almost always arrive in order; only search when they don't
	n := len(s.stamps)
	if n == 0 || !t.Before(s.stamps[n-1]) {
		s.stamps = append(s.stamps, t)
		return
	}

	i := sort.Search(n, func(i int) bool { return s.stamps[i].After(t) })
	s.stamps = append(s.stamps, time.Time{})
	copy(s.stamps[i+1:], s.stamps[i:])
	s.stamps[i] = t
}

// Remove forgets one request recorded at t.
func (s *SlidingLog) Remove(t time.Time) {
	for i := len(s.stamps) - 1; i >= 0; i-- {
		if s.stamps[i].Equal(t) {
			s.stamps = append(s.stamps[:i], s.stamps[i+1:]...)
			return
		}
	}
}

// Count returns the number of requests in (now-window, now].
func (s *SlidingLog) Count(now time.Time) int {
	s.trim(now.Add(-s.window))
	return len(s.stamps)
}

// Prune drops requests recorded before cutoff.
func (s *SlidingLog) Prune(cutoff time.Time) int {
	before := len(s.stamps)
	i := sort.Search(before, func(i int) bool { return !s.stamps[i].Before(cutoff) })
	s.stamps = append(s.stamps[:0], s.stamps[i:]...)
	return before - len(s.stamps)
}

// Reset clears the log.
func (s *SlidingLog) Reset() {
	s.stamps = nil
}

// trim drops timestamps at or before edge.
func (s *SlidingLog) trim(edge time.Time) {
	i := sort.Search(len(s.stamps), func(i int) bool { return s.stamps[i].After(edge) })
	if i > 0 {
		s.stamps = append(s.stamps[:0], s.stamps[i:]...)
	}
}
