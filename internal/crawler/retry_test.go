package crawler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: time.Millisecond}
}

func TestRetryTransientSucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	err := testPolicy(2).Do(context.Background(), slog.Default(), "p", "fetch size", func() error {
		calls++
		if calls == 1 {
			return &warehouse.TransientFetchError{Table: "t", Op: "fetch size", Err: errors.New("flaky")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	fetchErr := &warehouse.TransientFetchError{Table: "t", Op: "inspect", Err: errors.New("down")}
	err := testPolicy(3).Do(context.Background(), slog.Default(), "p", "inspect", func() error {
		calls++
		return fetchErr
	})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Do = %v, want the transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryNonTransient(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), slog.Default(), "p", "fetch size", func() error {
		calls++
		return warehouse.ErrTableNotFound
	})
	if !errors.Is(err, warehouse.ErrTableNotFound) {
		t.Fatalf("Do = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for not-found)", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{Attempts: 5, Backoff: time.Minute}.Do(ctx, slog.Default(), "p", "inspect", func() error {
		calls++
		cancel()
		return &warehouse.TransientFetchError{Table: "t", Op: "inspect", Err: errors.New("flaky")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (backoff interrupted)", calls)
	}
}
