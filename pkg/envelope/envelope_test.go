package envelope

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoReturnsResultOnCallerGoroutine(t *testing.T) {
	t.Parallel()
	pool := NewPool(Config{WorkerCount: 2})

	got, err := Do(context.Background(), pool, time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got == nil || *got != 42 {
		t.Fatalf("Do() = %v, want 42", got)
	}
}

func TestDoMapsBenignConflictToAbsent(t *testing.T) {
	t.Parallel()
	pool := NewPool(Config{WorkerCount: 1})

	got, err := Do(context.Background(), pool, time.Second, func(ctx context.Context) (string, error) {
		return "", ErrDocumentAlreadyExists
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil (benign conflict maps to absent)", err)
	}
	if got != nil {
		t.Fatalf("Do() = %v, want nil", got)
	}
}

func TestDoSurfacesOtherErrorsVerbatim(t *testing.T) {
	t.Parallel()
	pool := NewPool(Config{WorkerCount: 1})
	wantErr := errors.New("boom")

	got, err := Do(context.Background(), pool, time.Second, func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}
	if got != nil {
		t.Fatalf("Do() = %v, want nil", got)
	}
}

func TestDoRespectsTimeout(t *testing.T) {
	t.Parallel()
	pool := NewPool(Config{WorkerCount: 1})

	_, err := Do(context.Background(), pool, 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatal("Do() expected a timeout error, got nil")
	}
}

func TestShardInfoCheck(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		info    ShardInfo
		wantErr bool
	}{
		{"all succeeded and acknowledged", ShardInfo{Total: 3, Successful: 3, Acknowledged: true}, false},
		{"shard incomplete", ShardInfo{Total: 3, Successful: 2, Acknowledged: true}, true},
		{"not acknowledged", ShardInfo{Total: 1, Successful: 1, Acknowledged: false}, true},
	}
	for _, c := range cases {
		err := c.info.Check()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Check() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
		if err != nil && !errors.Is(err, ErrShardIncomplete) {
			t.Errorf("%s: Check() error should wrap ErrShardIncomplete, got %v", c.name, err)
		}
	}
}

// TestWaitForGreenWithBackoffSucceedsImmediately asserts a check that's
// already green never retries.
func TestWaitForGreenWithBackoffSucceedsImmediately(t *testing.T) {
	t.Parallel()
	calls := 0
	err := WaitForGreenWithBackoff(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("WaitForGreenWithBackoff() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one check call, got %d", calls)
	}
}

// TestWaitForGreenWithBackoffExhaustsAttempts asserts P8: exactly 11
// checks (the initial attempt plus 10 retries) when the check never
// turns green. backoffAfter is swapped for an immediately-firing channel
// so the test doesn't have to wait out the real ~205s exponential
// schedule; the context deadline is generous only as a safety net.
func TestWaitForGreenWithBackoffExhaustsAttempts(t *testing.T) {
	orig := backoffAfter
	backoffAfter = func(time.Duration) <-chan time.Time {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	defer func() { backoffAfter = orig }()

	calls := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := WaitForGreenWithBackoff(ctx, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if err == nil {
		t.Fatal("WaitForGreenWithBackoff() expected an error, got nil")
	}
	if calls != 11 {
		t.Fatalf("expected exactly 11 checks (1 initial + 10 retries), got %d", calls)
	}
}
