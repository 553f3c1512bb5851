package ratelimit

import "time"

// MinuteBucket counts requests per calendar bucket and reports only the
// bucket containing now.
//
// # Algorithm
//
//  1. Round the request timestamp down to the bucket boundary
//  2. Increment that bucket's counter
//  3. Count returns the counter of the bucket containing now
//
// Old buckets are kept until Prune so Remove can undo a request admitted in a
// previous minute.
type MinuteBucket struct {
	bucketSize time.Duration
	buckets    []bucket
}

// bucket represents a single time-stamped counter bucket.
type bucket struct {
	timestamp time.Time
	value     int
}

// NewMinuteBucket creates a bucketed counter. bucketSize is normally one minute.
func NewMinuteBucket(bucketSize time.Duration) *MinuteBucket {
	return &MinuteBucket{bucketSize: bucketSize}
}

// Add records a request at t.
func (m *MinuteBucket) Add(t time.Time) {
	m.findOrCreateBucket(t.Truncate(m.bucketSize)).value++
}

// Remove forgets one request recorded at t.
func (m *MinuteBucket) Remove(t time.Time) {
	key := t.Truncate(m.bucketSize)
	for i := range m.buckets {
		if m.buckets[i].timestamp.Equal(key) && m.buckets[i].value > 0 {
			m.buckets[i].value--
			return
		}
	}
}

// Count returns the number of requests in the bucket containing now.
func (m *MinuteBucket) Count(now time.Time) int {
	key := now.Truncate(m.bucketSize)
	for i := len(m.buckets) - 1; i >= 0; i-- {
		if m.buckets[i].timestamp.Equal(key) {
			return m.buckets[i].value
		}
	}
	return 0
}

// Prune drops buckets that ended before cutoff.
func (m *MinuteBucket) Prune(cutoff time.Time) int {
	dropped := 0
	kept := m.buckets[:0]
	for _, b := range m.buckets {
		if b.timestamp.Add(m.bucketSize).Before(cutoff) {
			dropped += b.value
			continue
		}
		kept = append(kept, b)
	}
	m.buckets = kept
	return dropped
}

// Reset clears all buckets.
func (m *MinuteBucket) Reset() {
	m.buckets = nil
}

// findOrCreateBucket finds the bucket for key or appends a new one.
func (m *MinuteBucket) findOrCreateBucket(key time.Time) *bucket {
	// The newest bucket is the common case
	if n := len(m.buckets); n > 0 && m.buckets[n-1].timestamp.Equal(key) {
		return &m.buckets[n-1]
	}

	for i := range m.buckets {
		if m.buckets[i].timestamp.Equal(key) {
			return &m.buckets[i]
		}
	}

	m.buckets = append(m.buckets, bucket{timestamp: key})
	return &m.buckets[len(m.buckets)-1]
}
