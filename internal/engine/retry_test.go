package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/providers/fake"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("throttled")
		}
		return nil
	}, func(err error) bool {
		return true
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return fmt.Errorf("permanent error")
	}, func(err error) bool {
		return false
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts) // Only tried once
}

func TestRetryWithBackoff_MaxRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), &RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, func() error {
		attempts++
		return fmt.Errorf("always fails")
	}, func(err error) bool {
		return true
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 3, attempts) // 1 initial + 2 retries
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, &RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
	}, func() error {
		return fmt.Errorf("would retry")
	}, func(err error) bool {
		return true
	})

	assert.Error(t, err)
}

func TestCalculateBackoff_Bounded(t *testing.T) {
	base := 100 * time.Millisecond
	max := 1 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, base, max)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
}

func TestAwaitReady_SettlesAfterPolls(t *testing.T) {
	ctx := context.Background()
	p := fake.New()

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindCDNDistribution,
		Name:      "site-cdn",
		Provider:  "fake",
		LookupKey: "dist",
	}
	p.ReadyAfterPolls[fake.Key(desc.Kind, desc.LookupKey)] = 3

	h, err := p.Create(ctx, desc)
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusPending, h.Status)

	settled, err := AwaitReady(ctx, p, desc, h, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusActive, settled.Status)
	assert.Equal(t, 3, p.ReadyCalls)
}

func TestAwaitReady_TimeoutKeepsHandle(t *testing.T) {
	ctx := context.Background()
	p := fake.New()

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindEmailIdentity,
		Name:      "admin-email",
		Provider:  "fake",
		LookupKey: "ops@example.com",
	}
	p.ReadyAfterPolls[fake.Key(desc.Kind, desc.LookupKey)] = 1000

	h, err := p.Create(ctx, desc)
	require.NoError(t, err)

	settled, err := AwaitReady(ctx, p, desc, h, 10*time.Millisecond, 2*time.Millisecond)
	require.Error(t, err)

	var notReady *pipeline.AsyncNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, pipeline.KindEmailIdentity, notReady.Kind)

	// The handle comes back usable, still pending.
	require.NotNil(t, settled)
	assert.Equal(t, pipeline.StatusPending, settled.Status)
	assert.Greater(t, p.ReadyCalls, 0)
}

func TestAwaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fake.New()

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindTable,
		Name:      "results-table",
		Provider:  "fake",
		LookupKey: "tbl",
	}
	p.ReadyAfterPolls[fake.Key(desc.Kind, desc.LookupKey)] = 1000

	h, err := p.Create(context.Background(), desc)
	require.NoError(t, err)

	cancel()
	_, err = AwaitReady(ctx, p, desc, h, time.Minute, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
