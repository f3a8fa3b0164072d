package backend

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	Disabled            bool          // Skip the resilient wrapper entirely
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// withDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = d.MaxElapsedTime
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.RandomizationFactor < 0 {
		c.RandomizationFactor = d.RandomizationFactor
	}
	return c
}

// CircuitBreakerRegistry manages one circuit breaker per model.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given model, creating it on first use.
func (r *CircuitBreakerRegistry) Get(model string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[model]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 3,                // Probe requests allowed while half-open
		Interval:    0,                // Never clear counts while closed
		Timeout:     30 * time.Second, // Open period before probing again
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("WARNING: circuit breaker for model %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation and caller mistakes say nothing about backend health
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var be *Error
			if errors.As(err, &be) && be.Permanent() {
				return true
			}
			return false
		},
	})

	r.breakers[model] = cb
	return cb
}

// Resilient decorates a Backend with exponential backoff retries and a
// per-model circuit breaker.
type Resilient struct {
	inner    Backend
	retry    RetryConfig
	breakers *CircuitBreakerRegistry
}

// NewResilient wraps inner. A nil registry gets a private one.
func NewResilient(inner Backend, retry RetryConfig, breakers *CircuitBreakerRegistry) *Resilient {
	if breakers == nil {
		breakers = NewCircuitBreakerRegistry()
	}
	return &Resilient{inner: inner, retry: retry.withDefaults(), breakers: breakers}
}

// Complete implements Backend.
func (r *Resilient) Complete(ctx context.Context, req Request) (Response, error) {
	return completeWithRetry(ctx, r.inner, req, r.breakers.Get(req.Model), r.retry)
}

// Close implements Backend.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

// completeWithRetry sends req with exponential backoff retry and circuit breaker protection.
func completeWithRetry(ctx context.Context, b Backend, req Request, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (Response, error) {
	var resp Response

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return b.Complete(ctx, req)
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			var be *Error
			if errors.As(err, &be) && be.Permanent() {
				return backoff.Permanent(err)
			}
			return err
		}

		resp = result.(Response)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return resp, err
}
