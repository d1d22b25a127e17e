package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}

	calls := 0
	retries := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func(attempt int, err error) {
		retries++
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("expected 2 retry callbacks, got %d", retries)
	}
}

func TestRetryExhaustion(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

	calls := 0
	cause := errors.New("database has gone away")
	err := policy.Do(context.Background(), func() error {
		calls++
		return cause
	}, nil)

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if !IsRetryExhausted(err) {
		t.Fatalf("expected retry-exhausted error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the last underlying error to be wrapped")
	}
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	policy := DefaultRetryPolicy()

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return nil
	}, func(attempt int, err error) {
		t.Error("onRetry should not fire on success")
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return errors.New("still failing")
		}, nil)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	policy := RetryPolicy{}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	}, nil)
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if !IsRetryExhausted(err) {
		t.Errorf("expected retry-exhausted error, got %v", err)
	}
}
