package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}
	if policy.ShouldRetry(errors.New("connection refused"), 3) {
		t.Error("should not retry after max attempts")
	}

	for attempt, want := range map[int]time.Duration{1: 250 * time.Millisecond, 2: 500 * time.Millisecond, 3: time.Second} {
		if got := policy.NextDelay(attempt); got != want {
			t.Errorf("NextDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRetryPolicyStatusCodes(t *testing.T) {
	policy := DefaultRetryPolicy()
	cases := map[int]bool{429: true, 500: true, 503: true, 400: false, 401: false, 404: false}
	for code, want := range cases {
		err := &StatusError{Provider: "test", Code: code}
		if got := policy.ShouldRetry(err, 1); got != want {
			t.Errorf("status %d: retry = %v, want %v", code, got, want)
		}
	}
}

func TestRetryPolicyNonRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	for _, err := range []error{nil, context.Canceled, context.DeadlineExceeded, errors.New("parse response: invalid character")} {
		if policy.ShouldRetry(err, 1) {
			t.Errorf("expected %v to be permanent", err)
		}
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		Multiplier:   10.0,
		MaxDelay:     30 * time.Second,
	}
	if delay := policy.NextDelay(5); delay != policy.MaxDelay {
		t.Errorf("expected delay capped at %v, got %v", policy.MaxDelay, delay)
	}
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestRetryPolicyExecuteSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExecutePermanent(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		return &StatusError{Provider: "test", Code: 401}
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one call and an error, got %d calls, err %v", calls, err)
	}
}

func TestRetryPolicyExecuteExhausted(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		return &StatusError{Provider: "test", Code: 503}
	})
	if err == nil || calls != 3 {
		t.Errorf("expected 3 calls and an error, got %d calls, err %v", calls, err)
	}
}
