// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
)

// State is a circuit breaker's position.
type State int

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

// ErrCircuitOpen is returned without invoking the guarded operation while
// a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards a single expensive operation — a shared-browser
// re-login, a token exchange — with a consecutive-failure policy: after
// failThreshold failures in a row every call fails fast with
// ErrCircuitOpen until cooldown elapses, then one probe is let through
// and a single success closes the breaker again. Process-wide per name;
// it outlives any individual run.
type CircuitBreaker struct {
	mu   sync.Mutex
	name string

	state       State
	consecutive int
	openedAt    time.Time

	failThreshold int
	cooldown      time.Duration

	now func() time.Time
}

// Option tweaks a breaker at construction time.
type Option func(*CircuitBreaker)

// WithNow substitutes the breaker's time source.
func WithNow(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// NewCircuitBreaker creates a closed breaker named name that trips after
// failThreshold consecutive failures and probes again after cooldown.
func NewCircuitBreaker(name string, failThreshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:          name,
		state:         StateClosed,
		failThreshold: failThreshold,
		cooldown:      cooldown,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetCircuitBreakerState(cb.name, cb.state.String())
	metrics.SetCircuitBreakerStatus(cb.name, int(cb.state))
	return cb
}

// Execute runs fn under the breaker. While open it returns ErrCircuitOpen
// immediately; in half-open exactly one caller probes and its outcome
// decides the next state.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

// allow reports whether a call may proceed now, moving an expired open
// breaker to half-open as a side effect.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		// One probe at a time; concurrent callers fail fast until the
		// probe's verdict is in.
		return false
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.moveTo(StateHalfOpen)
		return true
	default:
		return false
	}
}

// record applies a call's outcome. One success closes the breaker and
// resets the failure run; a failure while probing reopens it for a fresh
// cooldown.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutive = 0
		if cb.state != StateClosed {
			cb.moveTo(StateClosed)
		}
		return
	}

	cb.consecutive++
	if cb.state == StateHalfOpen || cb.consecutive >= cb.failThreshold {
		cb.openedAt = cb.now()
		if cb.state != StateOpen {
			metrics.RecordCircuitBreakerTrip(cb.name, "consecutive_failures")
			cb.moveTo(StateOpen)
		}
	}
}

// moveTo transitions state and mirrors it to metrics. Caller holds mu.
func (cb *CircuitBreaker) moveTo(s State) {
	cb.state = s
	metrics.SetCircuitBreakerState(cb.name, s.String())
	metrics.SetCircuitBreakerStatus(cb.name, int(s))
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
