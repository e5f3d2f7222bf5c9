package testutil

import "sync"

// ArrivalClock provides a thread-safe monotonic logical clock for tests.
//
// Ops carry an arrival sequence assigned by the ingest path; in tests
// the clock stands in for that path. It can be reset for test reuse, so
// the same scenario runs repeatedly with identical seq values.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type ArrivalClock struct {
	mu  sync.Mutex
	seq int64
}

// NewArrivalClock creates a new clock starting at 0.
//
// The first call to Next() returns 1.
func NewArrivalClock() *ArrivalClock {
	return &ArrivalClock{seq: 0}
}

// Next increments and returns the next sequence number.
//
// Monotonic: always returns seq+1, never decreases.
func (c *ArrivalClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *ArrivalClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0.
//
// Used for test reuse. After Reset(), the next call to Next() returns 1.
func (c *ArrivalClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
