// Package resilience protects the client from a failing PhantomLink backend.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). While
// open, calls fail fast with [ErrCircuitOpen] instead of waiting on a backend
// that is known to be down; after a cool-off a few probe calls are let through
// to decide whether to close again.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] when the breaker rejects a
// call without running it.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// Config holds tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Errors it
	// rejects (e.g. a 400 for a bad request) pass through untouched. Default:
	// every non-nil error except context cancellation counts.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after each transition. It runs with
	// the breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now returns the current time. Default: [time.Now].
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(string, State, State)
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// New creates a [CircuitBreaker]. Zero-value config fields are replaced with
// defaults.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Do runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	if err != nil && cb.isFailure(err) {
		cb.recordFailure(probe)
	} else {
		cb.recordSuccess(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	transitioned := false
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, transitioned = cb.state, true
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeSuccesses = 0
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probes++
		probe = true
	}
	cb.mu.Unlock()

	if transitioned {
		cb.transition(from, StateHalfOpen)
	}
	return probe, nil
}

func (cb *CircuitBreaker) recordFailure(probe bool) {
	cb.mu.Lock()
	from := cb.state
	if probe && cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.mu.Unlock()
		cb.transition(from, StateOpen)
		return
	}
	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		failures := cb.consecutiveFail
		cb.mu.Unlock()
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", failures)
		cb.transition(from, StateOpen)
		return
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) recordSuccess(probe bool) {
	cb.mu.Lock()
	if !probe || cb.state != StateHalfOpen {
		cb.consecutiveFail = 0
		cb.mu.Unlock()
		return
	}
	cb.probeSuccesses++
	if cb.probeSuccesses < cb.halfOpenMax {
		cb.probes--
		cb.mu.Unlock()
		return
	}
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.mu.Unlock()
	cb.transition(StateHalfOpen, StateClosed)
}

func (cb *CircuitBreaker) transition(from, to State) {
	if from == to {
		return
	}
	slog.Info("circuit breaker state change", "name", cb.name, "from", from.String(), "to", to.String())
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probes = 0
	cb.probeSuccesses = 0
	cb.mu.Unlock()
	cb.transition(from, StateClosed)
}
