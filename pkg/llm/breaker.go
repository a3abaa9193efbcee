package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes
// again after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. An open circuit lets a single
// probe through once resetAfter has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("circuit breaker open after %d consecutive failures", cb.consecutiveFails)
	default:
		return fmt.Errorf("circuit breaker half-open: probe in flight")
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and trips the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GuardedCompleter fails fast with ErrorTypeUnavailable while the breaker is open.
type GuardedCompleter struct {
	inner   Completer
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedCompleter wraps inner with breaker.
func NewGuardedCompleter(inner Completer, breaker *CircuitBreaker, logger *zap.Logger) *GuardedCompleter {
	return &GuardedCompleter{inner: inner, breaker: breaker, logger: logger.Named("llm.breaker")}
}

// Model returns the wrapped completer's model.
func (g *GuardedCompleter) Model() string {
	return g.inner.Model()
}

// Complete forwards to the wrapped completer unless the circuit is open.
// Rejections that are the caller's fault (4xx other than 429) do not count
// as provider failures.
func (g *GuardedCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("Completion short-circuited", zap.Error(err))
		return nil, NewError(ErrorTypeUnavailable, "provider temporarily disabled", false, err)
	}

	resp, err := g.inner.Complete(ctx, req)
	if err != nil {
		e := ClassifyError(err, g.inner.Model())
		if e.Retryable || e.Type != ErrorTypeRejected {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
		return nil, e
	}

	g.breaker.RecordSuccess()
	return resp, nil
}
