package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	max := 800 * time.Millisecond

	for attempt := 0; attempt < 8; attempt++ {
		for i := 0; i < 20; i++ {
			d := backoffWithJitter(base, max, attempt)

			expected := base << uint(attempt)
			if expected > max {
				expected = max
			}
			lo := expected - expected/4
			hi := expected + expected/4
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestRetryTransientStopsOnPermanent(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetry(), func() error {
		calls++
		return &RefreshError{Err: errors.New("revoked")}
	})

	var re *RefreshError
	if !errors.As(err, &re) || re.Transient {
		t.Fatalf("err = %v, want permanent RefreshError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent failure)", calls)
	}
}

func TestRetryTransientExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetry(), func() error {
		calls++
		return &RefreshError{Transient: true, Err: errors.New("unreachable")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryTransientHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	err := retryTransient(ctx, cfg, func() error {
		return &RefreshError{Transient: true, Err: errors.New("unreachable")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRetryTransientSucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 2 {
			return &RefreshError{Transient: true, Err: errors.New("blip")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryTransient: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
