package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/utils"
)

// MaxCircuitBreakers bounds the breakers one manager keeps. The least
// recently used breaker is dropped beyond it and starts closed when it is
// created again.
const MaxCircuitBreakers = 10000

// ErrorRecoveryManager runs operations under named retry policies and
// circuit breakers.
type ErrorRecoveryManager struct {
	logger          *logrus.Logger
	circuitBreakers *lru.Cache[string, *CircuitBreaker]
	retryPolicies   map[string]*RetryPolicy
	mu              sync.RWMutex
}

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// FixedDelayPolicy retries errors accepted by retryable up to maxRetries
// times, waiting delay between attempts.
func FixedDelayPolicy(maxRetries int, delay time.Duration, retryable func(error) bool) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  delay,
		MaxDelay:      delay,
		BackoffFactor: 1,
		Retryable:     retryable,
	}
}

// OperationResult represents the result of an operation with error recovery
type OperationResult struct {
	Success   bool
	Error     error
	Attempts  int
	Duration  time.Duration
	Recovered bool
}

// NewErrorRecoveryManager creates a new error recovery manager
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	breakers, _ := lru.New[string, *CircuitBreaker](MaxCircuitBreakers)
	return &ErrorRecoveryManager{
		logger:          logger,
		circuitBreakers: breakers,
		retryPolicies:   make(map[string]*RetryPolicy),
	}
}

// CircuitBreakerFor returns the breaker registered for name, registering one
// with config first if there is none.
func (erm *ErrorRecoveryManager) CircuitBreakerFor(name string, config CircuitBreakerConfig) *CircuitBreaker {
	erm.mu.Lock()
	defer erm.mu.Unlock()

	if cb, ok := erm.circuitBreakers.Get(name); ok {
		return cb
	}
	cb := NewCircuitBreaker(name, config, erm.logger)
	erm.circuitBreakers.Add(name, cb)
	return cb
}

// CircuitBreaker returns the breaker registered for name, or nil.
func (erm *ErrorRecoveryManager) CircuitBreaker(name string) *CircuitBreaker {
	erm.mu.RLock()
	defer erm.mu.RUnlock()
	cb, _ := erm.circuitBreakers.Peek(name)
	return cb
}

// RegisterRetryPolicy registers a retry policy for a specific operation
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()

	erm.retryPolicies[name] = policy
}

// ExecuteWithRetry runs operation under the policy registered for
// operationName, or DefaultRetryPolicy when none is registered. The attempt
// number passed to operation starts at 1. Errors the policy does not
// consider retryable end the loop immediately.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(
	ctx context.Context,
	operationName string,
	operation func(ctx context.Context, attempt int) error,
) *OperationResult {
	start := time.Now()
	result := &OperationResult{}

	erm.mu.RLock()
	retryPolicy := erm.retryPolicies[operationName]
	erm.mu.RUnlock()

	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicy()
	}

	maxRetries := max(retryPolicy.MaxRetries, 0)
	delay := retryPolicy.InitialDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Check context cancellation
		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			result.Duration = time.Since(start)
			return result
		default:
		}

		result.Attempts = attempt + 1
		err := operation(ctx, attempt+1)
		if err == nil {
			result.Success = true
			result.Error = nil
			result.Recovered = attempt > 0
			result.Duration = time.Since(start)
			if result.Recovered {
				erm.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  result.Attempts,
					"duration":  result.Duration,
				}).Info("Operation recovered after retry")
			}
			return result
		}
		result.Error = err

		if retryPolicy.Retryable != nil && !retryPolicy.Retryable(err) {
			erm.logger.WithFields(logrus.Fields{
				"operation": operationName,
				"attempt":   attempt + 1,
				"error":     err.Error(),
			}).Warn("Operation failed with non-retryable error")
			break
		}

		// Don't retry on last attempt
		if attempt == maxRetries {
			break
		}

		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"error":     err.Error(),
			"delay":     delay,
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(erm.calculateDelay(delay, retryPolicy))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Error = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-timer.C:
		}

		if retryPolicy.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * retryPolicy.BackoffFactor)
		}
		if retryPolicy.MaxDelay > 0 && delay > retryPolicy.MaxDelay {
			delay = retryPolicy.MaxDelay
		}
	}

	result.Duration = time.Since(start)
	erm.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"attempts":  result.Attempts,
		"duration":  result.Duration,
		"error":     result.Error.Error(),
	}).Error("Operation failed after all retries")

	return result
}

// calculateDelay calculates the delay with optional jitter
func (erm *ErrorRecoveryManager) calculateDelay(baseDelay time.Duration, policy *RetryPolicy) time.Duration {
	if !policy.JitterEnabled {
		return baseDelay
	}

	// Add up to 25% jitter either way
	jitter := time.Duration(float64(baseDelay) * 0.25 * (rand.Float64()*2 - 1))
	return baseDelay + jitter
}

// DefaultRetryPolicy retries transient errors with exponential backoff.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		Retryable:     utils.IsTransient,
	}
}

// DefaultRetryPolicies returns default retry policies for common operations
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		"domain_fetch": FixedDelayPolicy(3, 100*time.Millisecond, utils.IsTransient),
		"database_operation": {
			MaxRetries:    5,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
			Retryable:     utils.IsTransient,
		},
		"redis_operation": {
			MaxRetries:    3,
			InitialDelay:  25 * time.Millisecond,
			MaxDelay:      1 * time.Second,
			BackoffFactor: 2.0,
			Retryable:     utils.IsTransient,
		},
		"notification": {
			MaxRetries:    2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      3 * time.Second,
			BackoffFactor: 2.5,
			JitterEnabled: true,
			Retryable:     utils.IsTransient,
		},
	}
}
