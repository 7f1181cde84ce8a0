// Package resilience provides bounded retry with exponential backoff for
// provider API calls.
package resilience

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A value of 0 means no retries. Default: 3.
	MaxRetries int

	// BaseBackoff is the wait before the first retry; each subsequent
	// retry doubles it (base * 2^attempt). Default: 60s.
	BaseBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 15m.
	MaxBackoff time.Duration

	// ShouldRetry decides whether an error is retryable. If nil,
	// IsRateLimited is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff sleep with the zero-based
	// attempt number and the error that triggered the retry.
	OnRetry func(attempt int, err error)
}

// DoVal executes fn with retry logic according to cfg, preserving the
// value from the successful call. Only errors accepted by ShouldRetry
// are retried; everything else is surfaced immediately. The backoff
// sleep honors context cancellation.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRateLimited
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		delay := computeBackoff(attempt, cfg)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 60 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Minute
	}
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each backoff.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("rate limited, backing off",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
}
