package core

import (
	"context"
	"time"
)

// CircuitBreaker protects a downstream dependency (simulator HTTP calls,
// reasoning provider calls) from cascading failure. Implementations live in
// the resilience package; this interface is the contract runtime and
// simulator depend on so they never import resilience's concrete type
// directly.
type CircuitBreaker interface {
	// Execute runs fn with circuit breaker protection. Returns
	// ErrCircuitBreakerOpen immediately if the circuit is open.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs fn with both circuit breaker protection and a
	// hard timeout.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns "closed", "open", or "half-open".
	GetState() string

	// GetMetrics returns counters describing breaker behavior.
	GetMetrics() map[string]interface{}

	// Reset forces the breaker back to closed, clearing counters.
	Reset()

	// CanExecute reports whether the breaker would currently allow a call.
	CanExecute() bool
}

// CircuitBreakerConfig tunes a CircuitBreaker implementation.
type CircuitBreakerConfig struct {
	Enabled          bool
	Threshold        int           // consecutive failures before opening
	Timeout          time.Duration // how long the breaker stays open
	HalfOpenRequests int           // trial requests allowed while half-open
}

// CircuitBreakerParams bundles the dependencies a concrete CircuitBreaker
// constructor needs.
type CircuitBreakerParams struct {
	Name      string
	Config    CircuitBreakerConfig
	Logger    Logger
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns sensible defaults for a breaker named
// name.
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        5,
			Timeout:          30 * time.Second,
			HalfOpenRequests: 3,
		},
	}
}
