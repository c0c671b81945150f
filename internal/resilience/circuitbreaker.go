// Package resilience keeps the agent answering when a model backend degrades.
//
// A [CircuitBreaker] stops hammering a backend after a streak of failures and
// probes it again once a cooldown passes. [FallbackGroup] chains several
// backends of one provider type behind per-backend breakers, so a tripped
// primary is skipped in favour of the next healthy entry. [ChatFallback] and
// [EmbeddingsFallback] apply the group to the two provider interfaces the
// engine consumes.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// Breaker defaults, applied for zero-valued [CircuitBreakerConfig] fields.
const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	defaultProbeBudget  = 3
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; a single failure re-opens it.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero-valued fields fall back
// to the package defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the failure streak that trips a closed breaker.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker refuses calls before it
	// starts probing again.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls a half-open breaker permits,
	// and the number of successes needed to close it again.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker guarding a single backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeBudget  int

	mu            sync.Mutex
	state         State
	failStreak    int
	lastFail      time.Time
	probes        int
	probeFailures int
}

// NewCircuitBreaker builds a breaker from cfg, substituting defaults for
// zero-valued fields. The breaker starts closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = defaultProbeBudget
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeBudget:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker refuses the call, and feeds the outcome
// back into the breaker's state. Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	cb.settle(err, probing)
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probing, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFail) < cb.resetTimeout {
			return false, false
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFailures = 0
		slog.Info("circuit breaker probing backend", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.probeBudget {
			// Probe budget spent; wait for the in-flight probes to settle.
			return false, false
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, true
	}
	return false, true
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && probing:
		// One failed probe re-opens immediately.
		cb.lastFail = time.Now()
		cb.probeFailures++
		cb.state = StateOpen
		cb.failStreak = cb.maxFailures
		slog.Warn("circuit breaker re-opened after failed probe", "name", cb.name)

	case err != nil:
		cb.lastFail = time.Now()
		cb.failStreak++
		if cb.failStreak >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name, "failure_streak", cb.failStreak)
		}

	case probing:
		if cb.probes-cb.probeFailures >= cb.probeBudget {
			cb.state = StateClosed
			cb.failStreak = 0
			cb.probes = 0
			cb.probeFailures = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}

	default:
		cb.failStreak = 0
	}
}

// State reports the breaker's current mode. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the stored state flips on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFail) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failStreak = 0
	cb.probes = 0
	cb.probeFailures = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
