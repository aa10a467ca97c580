// Package retry runs an operation with exponential backoff.
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: time.Second}, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted matches any error returned after all attempts failed.
var ErrExhausted = errors.New("retries exhausted")

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative values mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. It doubles after
	// every retry up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors. When nil every error is retried.
	ShouldRetry func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

// RetryAfterer is implemented by errors that carry a server-provided wait hint.
type RetryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Backoff returns the wait before attempt n+1 (n starting at 1): initial * 2^(n-1), capped.
func Backoff(initial, max time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := initial
	for i := 1; i < n; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the context is
// done, or MaxAttempts is reached. A non-retryable error is returned as is.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := Backoff(cfg.InitialDelay, cfg.MaxDelay, attempt)
		var hinted RetryAfterer
		if errors.As(lastErr, &hinted) {
			if d, ok := hinted.RetryAfter(); ok && d > 0 {
				wait = d
			}
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
