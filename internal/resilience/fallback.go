package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] either
// failed or sits behind an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig configures the circuit breaker cloned for each backend in a
// [FallbackGroup]. The breaker's Name field is overwritten with the backend
// name at registration.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs a provider value with its dedicated circuit breaker.
type backend[T any] struct {
	name     string
	provider T
	breaker  *CircuitBreaker
}

// FallbackGroup chains a primary and any number of fallback backends of the
// same provider type. Calls walk the chain in registration order and stop at
// the first healthy backend; tripped breakers are skipped without a call.
//
// Registration ([NewFallbackGroup], [FallbackGroup.AddFallback]) is expected
// to happen during startup, before the group serves concurrent calls.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup builds a group with primary as its first backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all previously registered ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, provider T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.backends = append(fg.backends, backend[T]{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first registered backend. The second return value is
// false for an empty group.
func (fg *FallbackGroup[T]) Primary() (T, bool) {
	if len(fg.backends) == 0 {
		var zero T
		return zero, false
	}
	return fg.backends[0].provider, true
}

// Execute walks the chain until fn succeeds against some backend. When every
// backend fails it returns [ErrAllFailed] wrapped around the last error.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(provider T) (struct{}, error) {
		return struct{}{}, fn(provider)
	})
	return err
}

// ExecuteWithResult walks the group's chain until fn succeeds against some
// backend and returns that backend's result. A package-level function because
// Go methods cannot introduce the result type parameter.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.backends {
		be := &fg.backends[i]

		var result R
		err := be.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(be.provider)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", be.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", be.name, "error", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
