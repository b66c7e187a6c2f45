package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/pkg/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func sampleResult() types.ManualRetrievalResult {
	return types.ManualRetrievalResult{
		Source:      types.SourceOEMFallback,
		Vehicle:     types.Vehicle{Year: 2022, Make: "Toyota", Model: "Camry"},
		ManualURL:   "https://example.com/camry.pdf",
		ManualTitle: "2022 Toyota Camry Owner's Manual",
		RetrievedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// backends returns each implementation wired to the same fake clock
func backends(t *testing.T, clock *fakeClock) map[string]Cache {
	t.Helper()

	mem, err := NewMemoryCache(16)
	require.NoError(t, err)
	mem.clock = clock.Now

	bolt, err := NewBoltCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	bolt.clock = clock.Now
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Cache{"memory": mem, "bolt": bolt}
}

func TestCache_SetGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for name, c := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, "2022:toyota:camry")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "2022:toyota:camry", sampleResult(), time.Hour))

			got, ok, err := c.Get(ctx, "2022:toyota:camry")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sampleResult().ManualURL, got.ManualURL)
			assert.Equal(t, sampleResult().Vehicle, got.Vehicle)
			assert.True(t, sampleResult().RetrievedAt.Equal(got.RetrievedAt))
		})
	}
}

func TestCache_ExpiredIsMiss(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for name, c := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, "k", sampleResult(), time.Hour))

			clock.now = clock.now.Add(59 * time.Minute)
			_, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			clock.now = clock.now.Add(time.Minute)
			_, ok, err = c.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			clock.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		})
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for name, c := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, "k", sampleResult(), 0))

			clock.now = clock.now.Add(DefaultTTL - time.Second)
			_, ok, _ := c.Get(ctx, "k")
			assert.True(t, ok)

			clock.now = clock.now.Add(time.Second)
			_, ok, _ = c.Get(ctx, "k")
			assert.False(t, ok)

			clock.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		})
	}
}

func TestCache_Purge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for name, c := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, "short", sampleResult(), time.Minute))
			require.NoError(t, c.Set(ctx, "long", sampleResult(), time.Hour))

			clock.now = clock.now.Add(2 * time.Minute)
			removed, err := c.Purge(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, ok, _ := c.Get(ctx, "long")
			assert.True(t, ok)

			removed, err = c.Purge(ctx)
			require.NoError(t, err)
			assert.Zero(t, removed)

			clock.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		})
	}
}

func TestBoltCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := NewBoltCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", sampleResult(), time.Hour))
	require.NoError(t, c.Close())

	c, err = NewBoltCache(path)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SourceOEMFallback, got.Source)
}

func TestMemoryCache_Eviction(t *testing.T) {
	c, err := NewMemoryCache(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", sampleResult(), time.Hour))
	require.NoError(t, c.Set(ctx, "b", sampleResult(), time.Hour))
	require.NoError(t, c.Set(ctx, "c", sampleResult(), time.Hour))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}
