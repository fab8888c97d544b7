package clients

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig sizes a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int

	// Timeout is how long an open circuit refuses calls before probing.
	Timeout time.Duration

	// HalfOpenLimit bounds concurrent probes. The same number of
	// consecutive probe successes closes the circuit.
	HalfOpenLimit int
}

// CircuitBreaker refuses calls to a destination that keeps failing.
//
//	closed    -> open       after MaxFailures consecutive failures
//	open      -> half-open  on the first Allow after Timeout
//	half-open -> closed     after HalfOpenLimit consecutive successes
//	half-open -> open       on any failure
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	clock func() time.Time

	mu       sync.RWMutex
	state    State
	streak   int // consecutive failures when closed, successes when half-open
	inFlight int // probes admitted while half-open
	openedAt time.Time
	notify   func(from, to State)
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, clock: time.Now}
}

// OnStateChange sets fn to run on its own goroutine after each transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	cb.notify = fn
	cb.mu.Unlock()
}

// Allow reports whether a call may go ahead. The first call after an open
// circuit's timeout becomes a half-open probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.clock().Sub(cb.openedAt) < cb.cfg.Timeout {
			return false
		}

		cb.moveTo(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.inFlight >= max(cb.cfg.HalfOpenLimit, 1) {
			return false
		}

		cb.inFlight++
	}

	return true
}

// RecordSuccess records a call that got an answer from the destination.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.streak = 0
	case StateHalfOpen:
		cb.inFlight = max(cb.inFlight-1, 0)
		cb.streak++

		if cb.streak >= max(cb.cfg.HalfOpenLimit, 1) {
			cb.moveTo(StateClosed)
		}
	}
}

// RecordFailure records a call that did not get an answer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.streak++

		if cb.streak >= cb.cfg.MaxFailures {
			cb.moveTo(StateOpen)
		}
	case StateHalfOpen:
		cb.moveTo(StateOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.state
}

// moveTo requires mu.
func (cb *CircuitBreaker) moveTo(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state, cb.streak, cb.inFlight = next, 0, 0

	if next == StateOpen {
		cb.openedAt = cb.clock()
	}

	if cb.notify != nil {
		go cb.notify(prev, next)
	}
}
