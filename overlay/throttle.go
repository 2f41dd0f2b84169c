package overlay

import (
	"sync"
	"time"
)

// DefaultRenderInterval is the minimum spacing between render passes
// while mutations keep arriving.
const DefaultRenderInterval = 100 * time.Millisecond

// Throttle rate-limits render passes on the leading edge: the first call
// fires immediately, later calls are swallowed until the interval has
// elapsed. A swallowed call is remembered so Drain can report that one
// trailing pass is still owed once the burst ends.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time

	last    time.Time
	pending bool
}

// NewThrottle creates a throttle. A non-positive interval falls back to
// DefaultRenderInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether a render pass may run now. When it returns false
// the request is recorded as pending.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.last.IsZero() || now.Sub(t.last) >= t.interval {
		t.last = now
		t.pending = false
		return true
	}
	t.pending = true
	return false
}

// Drain reports whether a trailing pass is owed for swallowed requests,
// clearing the flag. Callers check it after the interval timer fires.
func (t *Throttle) Drain() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending {
		return false
	}
	t.pending = false
	t.last = t.now()
	return true
}

// Interval returns the configured spacing, for scheduling the drain timer.
func (t *Throttle) Interval() time.Duration { return t.interval }
