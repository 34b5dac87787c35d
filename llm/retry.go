package llm

import (
	"context"
	"fmt"
	"time"
)

// BackoffPolicy computes the wait before the next attempt: Min doubled (or
// scaled by Multiplier) per completed attempt, clamped to Max.
type BackoffPolicy struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
}

// Wait returns the backoff after the given attempt (1-based). Waits are
// non-decreasing across attempts and never exceed Max.
func (p BackoffPolicy) Wait(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}

	wait := float64(p.Min)
	for i := 1; i < attempt; i++ {
		wait *= multiplier
		if wait >= float64(p.Max) {
			return p.Max
		}
	}
	if d := time.Duration(wait); d < p.Max {
		return d
	}
	return p.Max
}

// Operation is a single generation attempt.
type Operation func(ctx context.Context) (string, error)

// WithRetry runs op up to maxAttempts times, sleeping per policy between
// attempts. Any error counts as transient. After exhaustion the last error
// is wrapped in ErrGenerationUnavailable. Context cancellation aborts the
// wait immediately.
func WithRetry(ctx context.Context, op Operation, maxAttempts int, policy BackoffPolicy) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, policy.Wait(attempt)); err != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, lastErr)
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrGenerationUnavailable, maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerateResult carries the outcome of an asynchronous generation.
type GenerateResult struct {
	Text string
	Err  error
}

// RetryClient decorates a Client with the retry policy. It is the only
// Client implementation handed to the rest of the application.
type RetryClient struct {
	base        Client
	maxAttempts int
	policy      BackoffPolicy
}

func NewRetryClient(base Client, maxAttempts int, policy BackoffPolicy) *RetryClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryClient{base: base, maxAttempts: maxAttempts, policy: policy}
}

func (c *RetryClient) Generate(ctx context.Context, prompt string) (string, error) {
	return WithRetry(ctx, func(ctx context.Context) (string, error) {
		return c.base.Generate(ctx, prompt)
	}, c.maxAttempts, c.policy)
}

// GenerateOnce runs a single attempt against the underlying client, with no
// retries or backoff. Health probes use it so a down provider is reported
// immediately instead of after the full retry schedule.
func (c *RetryClient) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	return c.base.Generate(ctx, prompt)
}

// GenerateAsync runs Generate on its own goroutine with identical retry
// semantics. The returned channel is buffered and receives exactly one
// result.
func (c *RetryClient) GenerateAsync(ctx context.Context, prompt string) <-chan GenerateResult {
	out := make(chan GenerateResult, 1)
	go func() {
		text, err := c.Generate(ctx, prompt)
		out <- GenerateResult{Text: text, Err: err}
		close(out)
	}()
	return out
}

var _ Client = (*RetryClient)(nil)
