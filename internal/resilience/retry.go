// Package resilience retries and guards calls to the performance-records
// backend.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by +/- that fraction.
	JitterFraction float64

	// ShouldRetry defaults to IsTransient.
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultRetryConfig suits interactive backend lookups: a couple of quick
// retries, never more than a few seconds of waiting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// WithRetries returns a copy of c allowing n retries after the first attempt.
func (c RetryConfig) WithRetries(n int) RetryConfig {
	if n < 0 {
		n = 0
	}
	c.MaxAttempts = n + 1
	return c
}

// Do runs fn until it succeeds, fails permanently, the attempts run out or
// ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		val T
		err error
	)
	for attempt := 1; ; attempt++ {
		val, err = fn(ctx)
		if err == nil || ctx.Err() != nil || !retryable(err) || attempt >= cfg.MaxAttempts {
			return val, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return val, err
		case <-timer.C:
		}
	}
}

func withDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// backoff is the wait after the given (1-based) failed attempt.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		d += d * cfg.JitterFraction * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryLogger returns an OnRetry hook that logs each retry at warn level.
func RetryLogger(op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
