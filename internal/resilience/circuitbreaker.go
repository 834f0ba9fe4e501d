// Package resilience provides the circuit breaker that guards outbound calls
// to the remote dataset API.
//
// A [CircuitBreaker] is a three-state machine (closed → open → half-open).
// It never retries: a rejected or failed call is reported to the caller
// immediately, the breaker only decides whether the next call is attempted.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. All probes
	// succeeding closes the breaker; any probe failing re-opens it.
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
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes required to close
	// the breaker again. Default: 1.
	HalfOpenProbes int

	// OnStateChange, when set, is called after every transition with the
	// lock released.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies an error returned by the guarded call. Errors for
	// which it returns false count as successes. Default: every non-nil error
	// except context cancellation is a failure.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probesInUse  int
	probesPassed int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Execute runs fn if the breaker allows it and records the outcome. fn's
// error is returned unchanged; a rejected call returns [ErrCircuitOpen]
// without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, transition, err := cb.admit()
	cb.notify(transition)
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	cb.notify(cb.record(probe, cb.cfg.IsFailure(callErr)))
	return callErr
}

// transition describes a state change to report once the lock is released.
type transition struct {
	changed  bool
	from, to State
}

// admit decides whether a call may proceed. probe is true when the call is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, t transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, t, ErrCircuitOpen
		}
		t = cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probesInUse >= cb.cfg.HalfOpenProbes {
			return false, t, ErrCircuitOpen
		}
		cb.probesInUse++
		return true, t, nil
	}
	return false, t, nil
}

// record books the outcome of an admitted call.
func (cb *CircuitBreaker) record(probe, failed bool) transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		// A breaker reset while the probe was in flight has nothing to settle.
		if cb.state != StateHalfOpen {
			return transition{}
		}
		if failed {
			return cb.trip()
		}
		cb.probesPassed++
		if cb.probesPassed >= cb.cfg.HalfOpenProbes {
			cb.failures = 0
			return cb.setState(StateClosed)
		}
		return transition{}
	}

	if !failed {
		cb.failures = 0
		return transition{}
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		return cb.trip()
	}
	return transition{}
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() transition {
	cb.openedAt = cb.now()
	slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures)
	return cb.setState(StateOpen)
}

// setState changes state and resets probe accounting. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	from := cb.state
	cb.state = to
	cb.probesInUse = 0
	cb.probesPassed = 0
	return transition{changed: from != to, from: from, to: to}
}

func (cb *CircuitBreaker) notify(t transition) {
	if !t.changed {
		return
	}
	slog.Info("circuit breaker state change", "name", cb.cfg.Name, "from", t.from, "to", t.to)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	t := cb.setState(StateClosed)
	cb.mu.Unlock()
	cb.notify(t)
}
