package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// ResilientScorer wraps a scorer with resilience patterns from fortify.
// Deterministic local scorers don't need it; remote scoring services do.
type ResilientScorer struct {
	scorer         Scorer
	circuitBreaker circuitbreaker.CircuitBreaker[*Result]
	retrier        retry.Retry[*Result]
	bulkhead       bulkhead.Bulkhead[*Result]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

// ResilientConfig holds configuration for the resilient scorer wrapper.
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxAttempts for retry (default: 3)
	MaxAttempts int

	// InitialDelay between retries (default: 1s)
	InitialDelay time.Duration

	// MaxConcurrent for bulkhead (default: 5)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 2)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for scoring resilience.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxAttempts:          3,
		InitialDelay:         time.Second,
		MaxConcurrent:        5,
		RatePerSecond:        2,
	}
}

// NewResilientScorer wraps a scorer with resilience patterns using fortify.
func NewResilientScorer(scorer Scorer, cfg ResilientConfig) *ResilientScorer {
	rs := &ResilientScorer{
		scorer: scorer,
		logger: cfg.Logger,
		name:   scorer.Name(),
	}

	if cfg.EnableCircuitBreaker {
		rs.circuitBreaker = circuitbreaker.New[*Result](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rs.logger != nil {
					rs.logger.Warn("scorer circuit breaker state change",
						"scorer", rs.name,
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := cfg.InitialDelay
		if delay <= 0 {
			delay = time.Second
		}
		rs.retrier = retry.New[*Result](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				// Invalid submissions never become valid on retry.
				return !isValidationError(err)
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 5
		}
		rs.bulkhead = bulkhead.New[*Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rs.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	return rs
}

func (s *ResilientScorer) Name() string { return s.name }

// Score grades through the configured resilience layers.
func (s *ResilientScorer) Score(ctx context.Context, task *domain.Task, submission string) (*Result, error) {
	if s.rateLimit != nil {
		if !s.rateLimit.Allow(ctx, s.name) {
			return nil, fmt.Errorf("%w: scorer %s rate limit exceeded", domain.ErrUpstream, s.name)
		}
	}

	operation := func(ctx context.Context) (*Result, error) {
		return s.scorer.Score(ctx, task, submission)
	}

	if s.bulkhead != nil {
		inner := operation
		operation = func(ctx context.Context) (*Result, error) {
			return s.bulkhead.Execute(ctx, inner)
		}
	}

	if s.circuitBreaker != nil && s.retrier != nil {
		return s.circuitBreaker.Execute(ctx, func(ctx context.Context) (*Result, error) {
			return s.retrier.Do(ctx, operation)
		})
	}
	if s.circuitBreaker != nil {
		return s.circuitBreaker.Execute(ctx, operation)
	}
	if s.retrier != nil {
		return s.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// Close releases resources held by the resilient scorer.
func (s *ResilientScorer) Close() error {
	if s.rateLimit != nil {
		return s.rateLimit.Close()
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvariantViolation)
}
