package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
)

// DefaultRetryMax is the default maximum number of retries for transient errors.
const DefaultRetryMax = 3

// DefaultReadyTimeout bounds how long a step waits for an asynchronous
// resource to settle before continuing with a warning.
const DefaultReadyTimeout = 15 * time.Minute

// DefaultPollInterval is the delay between readiness probes.
const DefaultPollInterval = 5 * time.Second

// RetryPolicy defines retry behavior for transient cloud API errors.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff executes fn with exponential backoff and jitter.
// It retries only if shouldRetry returns true for the error.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < policy.MaxRetries {
			delay := calculateBackoff(attempt, policy.BaseDelay, policy.MaxDelay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxRetries, lastErr)
}

// calculateBackoff returns exponential backoff with jitter.
func calculateBackoff(attempt int, base, max time.Duration) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	// Add jitter: random between 0 and backoff
	jitter := rand.Float64() * backoff
	return time.Duration(jitter)
}

// AwaitReady polls p.Ready until the resource settles, the timeout elapses,
// or ctx is cancelled. A transient probe error counts as "not ready yet".
// On timeout it returns the last handle it saw together with an
// AsyncNotReadyError; the caller decides whether that is fatal.
func AwaitReady(ctx context.Context, p provider.Interface, desc *pipeline.Descriptor, h *pipeline.Handle, timeout, interval time.Duration) (*pipeline.Handle, error) {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		updated, ready, err := p.Ready(ctx, desc, h)
		if err != nil && !pipeline.IsTransient(err) {
			return h, err
		}
		if err == nil {
			if updated != nil {
				h = updated
			}
			if ready {
				return h, nil
			}
		}

		if time.Now().Add(interval).After(deadline) {
			return h, &pipeline.AsyncNotReadyError{Kind: desc.Kind, Name: desc.Name, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return h, fmt.Errorf("readiness wait cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
