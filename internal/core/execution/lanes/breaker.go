package lanes

import (
	"sync"
	"time"

	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker short-circuits dispatch to a venue after threshold consecutive
// failures. With resetAfter == 0 an open breaker stays open until Reset;
// otherwise one trial call is let through once resetAfter has elapsed.
// Safe for concurrent use.
type Breaker struct {
	venue string

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probing    bool
	threshold  int
	resetAfter time.Duration
	onChange   func(venue string, state BreakerState, failures int)
	now        func() time.Time
}

func NewBreaker(venue string, threshold int, resetAfter time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Breaker{
		venue:      venue,
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// OnChange registers a callback for state transitions. It runs with the
// breaker lock held and must not call back into the breaker.
func (b *Breaker) OnChange(fn func(venue string, state BreakerState, failures int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow reports whether a dispatch may reach the venue.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.resetAfter > 0 && b.now().Sub(b.openedAt) >= b.resetAfter {
			b.transition(BreakerHalfOpen)
			b.probing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.openedAt = b.now()
		b.transition(BreakerOpen)
	}
}

// Reset closes the breaker (operator recovery).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	switch {
	case to == BreakerOpen && from == BreakerClosed:
		telemetry.Metrics.BreakersOpen.Inc()
	case to == BreakerClosed && from != BreakerClosed:
		telemetry.Metrics.BreakersOpen.Dec()
	}
	if to == BreakerOpen {
		telemetry.Warnf("breaker: %s OPEN after %d consecutive failures", b.venue, b.failures)
	} else {
		telemetry.Infof("breaker: %s %s -> %s", b.venue, from, to)
	}
	if b.onChange != nil {
		b.onChange(b.venue, to, b.failures)
	}
}
