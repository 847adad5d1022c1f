// Package circuit trips after consecutive failures of a remote dependency and
// lets trial calls through once a cooldown has elapsed.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the circuit is open.
var ErrOpen = errors.New("circuit open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the dependency is healthy and calls flow normally.
	StateClosed State = iota
	// StateOpen means calls are rejected until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets calls through to test whether the dependency recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is a three-state circuit breaker.
//
// After FailureThreshold consecutive failures the circuit opens. Once Cooldown
// has passed the next Allow moves it to half-open. SuccessThreshold
// consecutive successes while half-open close it; any failure reopens it.
type Breaker struct {
	mu               sync.Mutex
	state            State
	name             string
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	now              func() time.Time
	onChange         func(name string, from, to State)
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the number of consecutive half-open successes to
// close the circuit. Default is 2.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open. Default is 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a callback invoked on every transition. It runs
// with the breaker lock held and must not call back into the breaker.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the circuit breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// circuit is open and the cooldown has not elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return ErrOpen
	}
	b.transition(StateHalfOpen)
	return nil
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount = 0
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.open()
		}
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// Reset resets the circuit breaker to closed state with zero counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.successCount = 0
	b.transition(StateClosed)
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.failureCount = 0
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
