package rendercache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvforge/internal/types"
)

func successOutcome(fp string) *types.Outcome {
	return &types.Outcome{
		Fingerprint: fp,
		Success:     true,
		Artifact:    &types.ArtifactRef{ID: "render_" + fp},
		RenderedAt:  time.Now(),
	}
}

func failureOutcome(fp, reason string) *types.Outcome {
	return &types.Outcome{
		Fingerprint: fp,
		Success:     false,
		Category:    "render",
		Reason:      reason,
		RenderedAt:  time.Now(),
	}
}

func TestCache_LookupMiss(t *testing.T) {
	cache := New()

	outcome, found := cache.Lookup("absent")
	assert.False(t, found)
	assert.Nil(t, outcome)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestCache_StoreAndLookup(t *testing.T) {
	cache := New()
	stored := successOutcome("fp-a")
	cache.Store("fp-a", stored)

	got, found := cache.Lookup("fp-a")
	require.True(t, found)
	// The identical outcome object comes back, not a copy.
	assert.Same(t, stored, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_NoConflation(t *testing.T) {
	// A failure cached for content A must never be returned for content B.
	cache := New()
	cache.Store("fp-a", failureOutcome("fp-a", "broken yaml"))
	cache.Store("fp-b", successOutcome("fp-b"))

	a, found := cache.Lookup("fp-a")
	require.True(t, found)
	assert.True(t, a.Failed())

	b, found := cache.Lookup("fp-b")
	require.True(t, found)
	assert.True(t, b.Success)
	assert.Equal(t, "fp-b", b.Fingerprint)
}

func TestCache_OverwriteFailureWithSuccess(t *testing.T) {
	// Retry path: a later success replaces a cached failure for the same
	// fingerprint.
	cache := New()
	cache.Store("fp-c", failureOutcome("fp-c", "tool missing"))

	got, found := cache.Lookup("fp-c")
	require.True(t, found)
	assert.True(t, got.Failed())

	cache.Store("fp-c", successOutcome("fp-c"))

	got, found = cache.Lookup("fp-c")
	require.True(t, found)
	assert.True(t, got.Success)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Overwrites)
	assert.Equal(t, 1, stats.Entries)
}

func TestCache_Delete(t *testing.T) {
	cache := New()
	cache.Store("fp-d", failureOutcome("fp-d", "transient"))
	cache.Delete("fp-d")

	_, found := cache.Lookup("fp-d")
	assert.False(t, found)

	// Deleting an absent key is a no-op.
	cache.Delete("fp-d")
}

func TestCache_Clear(t *testing.T) {
	cache := New()
	cache.Store("fp-1", successOutcome("fp-1"))
	cache.Store("fp-2", successOutcome("fp-2"))
	cache.Lookup("fp-1")

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	stats := cache.GetStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Stores)
}

func TestCache_HitRate(t *testing.T) {
	cache := New()
	assert.Equal(t, 0.0, cache.HitRate())

	cache.Store("fp", successOutcome("fp"))
	cache.Lookup("fp")
	cache.Lookup("fp")
	cache.Lookup("missing")

	assert.InDelta(t, 2.0/3.0, cache.HitRate(), 1e-9)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", n%5)
			cache.Store(fp, successOutcome(fp))
		}(i)
		go func(n int) {
			defer wg.Done()
			cache.Lookup(fmt.Sprintf("fp-%d", n%5))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, cache.Len())
}
