package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	result := Do(context.Background(), fastConfig(), func() error { return nil })
	if !result.Success || result.Attempts != 1 {
		t.Fatalf("expected success on first attempt, got attempts=%d success=%v", result.Attempts, result.Success)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if !result.Success {
		t.Fatalf("expected eventual success, got %v", result.LastError)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("invalid api key")
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Fatalf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	cfg := fastConfig()
	result := Do(context.Background(), cfg, func() error {
		return errors.New("rate limit exceeded")
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != cfg.MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetries+1, result.Attempts)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Do(ctx, fastConfig(), func() error {
		return errors.New("503 service unavailable")
	})
	if result.Success {
		t.Fatal("expected failure after cancellation")
	}
	if result.Attempts != 1 {
		t.Fatalf("cancelled context should stop retries, got %d attempts", result.Attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("request timeout"), true},
		{errors.New("invalid request payload"), false},
		{errors.New("unauthorized"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	if d := backoffDelay(cfg, 5); d > cfg.MaxDelay {
		t.Fatalf("delay %v exceeds cap %v", d, cfg.MaxDelay)
	}
}
