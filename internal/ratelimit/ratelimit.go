// Package ratelimit bounds outbound broker API calls to a fixed number per
// trailing time window.
package ratelimit

import (
	"sync"
	"time"
)

// safetyMargin is added to the computed wait so the oldest recorded call has
// definitely left the window before the new call is issued.
const safetyMargin = 100 * time.Millisecond

// Limiter allows at most maxCalls within any trailing window. Acquire blocks
// callers once the budget is spent; it never fails.
type Limiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls []time.Time

	// now is swapped out by tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter permitting maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Acquire blocks until issuing a call would not exceed the limit, then
// records the call. Safe for concurrent use.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.calls) >= l.maxCalls {
		wait := l.window - now.Sub(l.calls[0]) + safetyMargin
		if wait > 0 {
			l.sleep(wait)
		}
		l.prune(l.now())
	}

	l.calls = append(l.calls, l.now())
}

// Pending returns the number of calls currently counted against the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls)
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
