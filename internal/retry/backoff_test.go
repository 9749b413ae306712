package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func quickConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithBackoff_FirstTrySuccess(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), quickConfig(), func() error {
		calls++
		return nil
	})

	if !result.Success {
		t.Fatal("expected success")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestWithBackoff_EventualSuccess(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), quickConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if !result.Success {
		t.Fatal("expected success after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestWithBackoff_Exhausted(t *testing.T) {
	wantErr := errors.New("persistent failure")
	result := WithBackoff(context.Background(), quickConfig(), func() error {
		return wantErr
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, wantErr) {
		t.Errorf("expected last error %v, got %v", wantErr, result.LastError)
	}
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := WithBackoff(ctx, quickConfig(), func() error {
		return errors.New("failing")
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.LastError)
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	delay := backoffDelay(cfg, 5)
	if delay > 2*time.Second {
		t.Errorf("delay %v exceeds cap", delay)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("pq: too many clients already"), true},
		{errors.New("FATAL: the database system is starting up"), true},
		{errors.New("syntax error at or near"), false},
		{errors.New("context deadline exceeded"), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
