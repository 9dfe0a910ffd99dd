package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// Provider conformance suite. These tests verify the probe/provision
// lifecycle every provider implements:
// Configure -> Find (absent) -> Create -> Ready -> Find (present) -> Validate

func TestConformance_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()

	// 1. Configure
	require.NoError(t, p.Configure(ctx, map[string]string{"region": "af-south-1"}))
	assert.Equal(t, "af-south-1", p.Settings["region"])

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindTable,
		Name:      "results-table",
		Provider:  "fake",
		LookupKey: "chicago-crimes-results",
	}

	// 2. Find before creation reports absence, never a handle.
	_, err := p.Find(ctx, desc)
	require.True(t, pipeline.IsAbsent(err))

	// 3. Create
	h, err := p.Create(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, "fake-results-table", h.ID)
	assert.Equal(t, pipeline.StatusActive, h.Status)

	// 4. Ready settles immediately for an unscripted resource.
	settled, ready, err := p.Ready(ctx, desc, h)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, pipeline.StatusActive, settled.Status)

	// 5. Find after creation returns the same handle.
	found, err := p.Find(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, h.ID, found.ID)

	// 6. Validate
	require.NoError(t, p.Validate(ctx, desc, found))

	assert.Equal(t, 2, p.FindCalls)
	assert.Equal(t, 1, p.CreateCalls)
}

func TestConformance_DelayedReadiness(t *testing.T) {
	ctx := context.Background()
	p := New()

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindCDNDistribution,
		Name:      "site-cdn",
		Provider:  "fake",
		LookupKey: "dist-comment",
	}
	p.ReadyAfterPolls[Key(desc.Kind, desc.LookupKey)] = 3

	h, err := p.Create(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPending, h.Status)

	for poll := 1; poll <= 3; poll++ {
		settled, ready, err := p.Ready(ctx, desc, h)
		require.NoError(t, err)
		if poll < 3 {
			assert.False(t, ready, "poll %d", poll)
			assert.Equal(t, pipeline.StatusPending, settled.Status)
		} else {
			assert.True(t, ready)
			assert.Equal(t, pipeline.StatusActive, settled.Status)
		}
	}
	assert.Equal(t, 3, p.Polls(desc.Kind, desc.LookupKey))
}

func TestConformance_ErrorQueues(t *testing.T) {
	ctx := context.Background()
	p := New()

	desc := &pipeline.Descriptor{
		Kind:      pipeline.KindObjectStore,
		Name:      "uploads-bucket",
		Provider:  "fake",
		LookupKey: "chicago-crimes-uploads",
	}
	key := Key(desc.Kind, desc.LookupKey)
	p.FindErrs[key] = []error{&pipeline.TransientProviderError{Op: "find", Cause: context.DeadlineExceeded}}

	// First call pops the queued error, second behaves normally.
	_, err := p.Find(ctx, desc)
	var te *pipeline.TransientProviderError
	require.ErrorAs(t, err, &te)

	_, err = p.Find(ctx, desc)
	require.True(t, pipeline.IsAbsent(err))
}

func TestConformance_ConfigureIdempotent(t *testing.T) {
	ctx := context.Background()
	p := New()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Configure(ctx, map[string]string{"region": "af-south-1"}))
	}
}
