package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPolicy() BackoffPolicy {
	return BackoffPolicy{Min: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2}
}

func TestBackoffPolicyWaitBounds(t *testing.T) {
	policy := BackoffPolicy{Min: 4 * time.Second, Max: 10 * time.Second, Multiplier: 2}

	previous := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		wait := policy.Wait(attempt)
		if wait < policy.Min {
			t.Fatalf("attempt %d wait %s below minimum %s", attempt, wait, policy.Min)
		}
		if wait > policy.Max {
			t.Fatalf("attempt %d wait %s above maximum %s", attempt, wait, policy.Max)
		}
		if wait < previous {
			t.Fatalf("attempt %d wait %s decreased from %s", attempt, wait, previous)
		}
		previous = wait
	}

	if policy.Wait(1) != 4*time.Second {
		t.Fatalf("expected first wait to equal minimum, got %s", policy.Wait(1))
	}
	if policy.Wait(6) != 10*time.Second {
		t.Fatalf("expected late wait clamped to maximum, got %s", policy.Wait(6))
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	maxAttempts := 3
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		if calls < maxAttempts {
			return "", errors.New("connection refused")
		}
		return "answer", nil
	}

	out, err := WithRetry(context.Background(), op, maxAttempts, testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "answer" {
		t.Fatalf("unexpected result: %q", out)
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestWithRetryExhaustionWrapsLastError(t *testing.T) {
	underlying := errors.New("dial tcp: connection refused")
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("attempt %d: %w", calls, underlying)
	}

	_, err := WithRetry(context.Background(), op, 2, testPolicy())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if !errors.Is(err, underlying) {
		t.Fatalf("expected last underlying error to be wrapped, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("timeout")
	}

	_, err := WithRetry(ctx, op, 5, BackoffPolicy{Min: time.Hour, Max: time.Hour, Multiplier: 2})
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}

type flakyClient struct {
	failures int
	calls    int
}

func (c *flakyClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.calls++
	if c.calls <= c.failures {
		return "", errors.New("provider overloaded")
	}
	return "final answer", nil
}

func TestRetryClientGenerate(t *testing.T) {
	client := NewRetryClient(&flakyClient{failures: 1}, 2, testPolicy())

	out, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final answer" {
		t.Fatalf("unexpected result: %q", out)
	}
}

func TestRetryClientGenerateOnceSkipsRetries(t *testing.T) {
	base := &flakyClient{failures: 3}
	client := NewRetryClient(base, 3, BackoffPolicy{Min: time.Hour, Max: time.Hour, Multiplier: 2})

	if _, err := client.GenerateOnce(context.Background(), "prompt"); err == nil {
		t.Fatal("expected the single attempt to fail")
	}
	if base.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", base.calls)
	}
}

func TestRetryClientGenerateAsync(t *testing.T) {
	client := NewRetryClient(&flakyClient{failures: 0}, 2, testPolicy())

	result := <-client.GenerateAsync(context.Background(), "prompt")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Text != "final answer" {
		t.Fatalf("unexpected result: %q", result.Text)
	}
}
