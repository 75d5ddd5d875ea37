// Package breaker implements component C2: a per-provider three-state
// circuit breaker (closed/open/half-open) with constant-time operations,
// safe for concurrent use by multiple executor tasks targeting the same
// provider.
package breaker

import (
	"sync"
	"time"
)

// State is the closed three-state enumeration from spec §4.2.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold is the consecutive-failure count that trips
	// the breaker from Closed to Open, per spec §3 BreakerState.
	DefaultFailureThreshold = 5
	// DefaultCoolDown is how long an Open breaker waits before allowing
	// a half-open probe, per spec §3 BreakerState.
	DefaultCoolDown = 60 * time.Second
)

// Breaker is one provider's circuit breaker. MayRequest, RecordSuccess,
// and RecordFailure are the three operations of the contract in spec
// §4.2; State and Reset serve status views and tests.
type Breaker struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	probeInFlight    bool // guards "never more than one concurrent half-open probe" (spec §8 invariant 3)

	failureThreshold int
	coolDown         time.Duration
}

// New creates a breaker with the given failure threshold and cool-down.
// Zero values fall back to the spec defaults (threshold 5, cool-down 60s).
func New(failureThreshold int, coolDown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		coolDown:         coolDown,
	}
}

// MayRequest reports whether a request should be allowed through right
// now. In the Open state past its cool-down, the single call that
// observes the transition is the one allowed through as the half-open
// probe; concurrent callers racing the same transition see only one
// winner.
func (b *Breaker) MayRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.coolDown {
			return false
		}
		b.state = HalfOpen
		b.probeInFlight = true
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets its failure counter,
// matching the "any state, success -> Closed" row of the transition table.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFails = 0
	b.probeInFlight = false
}

// RecordFailure advances the consecutive-failure count (or re-opens
// immediately from HalfOpen), per the transition table in spec §4.2.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current breaker state, for status() views.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed, e.g. for tests or operator override.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFails = 0
	b.probeInFlight = false
}
