// Package resilience guards the broker data path: repeated upstream
// failures trip a breaker that sheds calls until the API recovers.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "CLOSED"    // normal operation
	StateOpen     State = "OPEN"      // shedding calls
	StateHalfOpen State = "HALF_OPEN" // probing for recovery
)

// ErrOpen is returned for calls shed while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // half-open successes that close it again
	CoolOff          time.Duration // open duration before probing
}

// DefaultConfig returns the thresholds used for the Kite data API.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolOff:          30 * time.Second,
	}
}

// Breaker is a mutex-guarded circuit breaker. Calls execute on the caller's
// goroutine; the breaker only decides whether they run.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	totalCalls  int64
	totalShed   int64
	totalFailed int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Do runs fn if the breaker allows it and records the outcome.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	if err := b.allow(); err != nil {
		return zero, err
	}

	v, err := fn()
	b.record(err == nil)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) > b.cfg.CoolOff {
			b.transition(StateHalfOpen)
			return nil
		}
		b.totalShed++
		return ErrOpen
	default:
		return nil
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.totalFailed++
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A probe failure reopens immediately.
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(state State) {
	b.state = state
	b.failures = 0
	b.successes = 0
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of the breaker counters.
type Stats struct {
	Name        string
	State       State
	TotalCalls  int64
	TotalShed   int64
	TotalFailed int64
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:        b.name,
		State:       b.state,
		TotalCalls:  b.totalCalls,
		TotalShed:   b.totalShed,
		TotalFailed: b.totalFailed,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}
