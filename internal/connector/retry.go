package connector

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for transient refresh failures.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt (default 2, i.e. 3 attempts total)
	BaseDelay  time.Duration // initial backoff delay (default 1s)
	MaxDelay   time.Duration // maximum backoff delay (default 30s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// retryTransient runs fn, retrying with exponential backoff + jitter while
// the error is a transient RefreshError. Permanent errors and non-refresh
// errors return immediately; context cancellation aborts the wait.
func retryTransient(ctx context.Context, cfg RetryConfig, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var re *RefreshError
		if !errors.As(err, &re) || !re.Transient {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		select {
		case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt) // base * 2^attempt
	if delay > max {
		delay = max
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
