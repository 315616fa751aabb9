// Package resilience provides the circuit breaker and retry primitives
// shared by the Simulator Adapter and the reasoning provider cascade,
// grounded on the teacher's resilience package (simplified from its
// sliding-window rate-based design to the consecutive-failure-threshold
// design described by core.CircuitBreakerConfig).
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/fleetguard/governor/core"
)

// CircuitState is the breaker's current posture.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// CircuitBreaker is a consecutive-failure circuit breaker implementing
// core.CircuitBreaker. closed -> open after Config.Threshold consecutive
// failures; open -> half-open after Config.Timeout elapses; half-open ->
// closed after Config.HalfOpenRequests consecutive successes, or back to
// open on any failure.
type CircuitBreaker struct {
	name   string
	config core.CircuitBreakerConfig
	logger core.Logger

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	halfOpenSuccess  int
	openedAt         time.Time

	totalSuccesses uint64
	totalFailures  uint64
	totalRejected  uint64
}

// New constructs a CircuitBreaker from params, grounded on the teacher's
// CircuitBreakerParams dependency-injection shape.
func New(params core.CircuitBreakerParams) *CircuitBreaker {
	logger := params.Logger
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &CircuitBreaker{
		name:   params.Name,
		config: params.Config,
		logger: logger,
		state:  StateClosed,
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.config.Enabled {
		return fn()
	}
	if !cb.CanExecute() {
		cb.mu.Lock()
		cb.totalRejected++
		cb.mu.Unlock()
		return core.ErrCircuitBreakerOpen
	}

	err := fn()
	cb.recordResult(err)
	return err
}

// ExecuteWithTimeout runs fn under both circuit-breaker protection and a
// hard deadline.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	return cb.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case err := <-done:
			return err
		case <-timer.C:
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// CanExecute reports whether a call would currently be allowed through.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.transitionLocked(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.totalSuccesses++
		switch cb.state {
		case StateHalfOpen:
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.config.HalfOpenRequests {
				cb.transitionLocked(StateClosed)
			}
		case StateClosed:
			cb.consecutiveFails = 0
		}
		return
	}

	cb.totalFailures++
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.config.Threshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
		cb.halfOpenSuccess = 0
	case StateHalfOpen:
		cb.halfOpenSuccess = 0
	case StateClosed:
		cb.consecutiveFails = 0
		cb.halfOpenSuccess = 0
	}
	if from != to {
		cb.logger.Info("circuit breaker state change", map[string]interface{}{
			"name": cb.name, "from": from.String(), "to": to.String(),
		})
	}
}

// GetState returns "closed", "open", or "half-open".
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// GetMetrics returns counters describing breaker behavior.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.state.String(),
		"consecutive_fails": cb.consecutiveFails,
		"total_successes":   cb.totalSuccesses,
		"total_failures":    cb.totalFailures,
		"total_rejected":    cb.totalRejected,
	}
}

// Reset forces the breaker back to closed, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}
