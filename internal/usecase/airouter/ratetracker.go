package airouter

import (
	"sync"
	"sync/atomic"
	"time"
)

// quotaWindow is how long request counts accumulate before resetting.
const quotaWindow = 24 * time.Hour

// Clock supplies the current time. Tests inject a fake to move the quota window.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RateTracker counts successful requests per provider over a rolling 24h
// window. Counts are advisory: the router uses them to move providers that
// look exhausted to the back of the chain, never to refuse a call.
// All methods are safe for concurrent use.
type RateTracker struct {
	clock Clock

	mu          sync.RWMutex
	counters    map[string]*atomic.Int64
	windowStart atomic.Int64 // unix nanos
}

// NewRateTracker creates a tracker whose window starts now. A nil clock
// uses the wall clock.
func NewRateTracker(clock Clock) *RateTracker {
	if clock == nil {
		clock = systemClock{}
	}
	t := &RateTracker{
		clock:    clock,
		counters: make(map[string]*atomic.Int64),
	}
	t.windowStart.Store(clock.Now().UnixNano())
	return t
}

// rollIfExpired clears every counter once the window has elapsed.
func (t *RateTracker) rollIfExpired() {
	now := t.clock.Now()
	if now.Sub(time.Unix(0, t.windowStart.Load())) < quotaWindow {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// Double-check after acquiring write lock.
	if now.Sub(time.Unix(0, t.windowStart.Load())) < quotaWindow {
		return
	}
	t.counters = make(map[string]*atomic.Int64)
	t.windowStart.Store(now.UnixNano())
}

// Increment records one successful request and returns the new count. The
// add happens under the map lock so a concurrent roll cannot discard it.
func (t *RateTracker) Increment(name string) int64 {
	t.rollIfExpired()

	t.mu.RLock()
	if c, ok := t.counters[name]; ok {
		n := c.Add(1)
		t.mu.RUnlock()
		return n
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counters[name]
	if !ok {
		c = &atomic.Int64{}
		t.counters[name] = c
	}
	return c.Add(1)
}

// Count returns the requests recorded for name in the current window.
func (t *RateTracker) Count(name string) int64 {
	t.rollIfExpired()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// OverQuota reports whether name has reached limit. A non-positive limit
// means unlimited.
func (t *RateTracker) OverQuota(name string, limit int) bool {
	if limit <= 0 {
		return false
	}
	return t.Count(name) >= int64(limit)
}

// Snapshot returns a copy of all non-zero counts.
func (t *RateTracker) Snapshot() map[string]int64 {
	t.rollIfExpired()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int64, len(t.counters))
	for name, c := range t.counters {
		if n := c.Load(); n > 0 {
			out[name] = n
		}
	}
	return out
}

// Reset clears all counts and restarts the window.
func (t *RateTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters = make(map[string]*atomic.Int64)
	t.windowStart.Store(t.clock.Now().UnixNano())
}

// WindowStart returns when the current counting window began.
func (t *RateTracker) WindowStart() time.Time {
	return time.Unix(0, t.windowStart.Load())
}
