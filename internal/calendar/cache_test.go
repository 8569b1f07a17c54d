package calendar

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*BusyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewBusyCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestBusyCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	min := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	max := min.AddDate(0, 0, 7)
	intervals := []BusyInterval{
		{Start: min.Add(18 * time.Hour), End: min.Add(19 * time.Hour)},
	}

	_, ok, err := cache.Get(ctx, "acct-1", "cal-1", min, max, "Europe/Berlin")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "acct-1", "cal-1", min, max, "Europe/Berlin", intervals))

	got, ok, err := cache.Get(ctx, "acct-1", "cal-1", min, max, "Europe/Berlin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, intervals, got)
}

func TestBusyCacheKeyIncludesQueryShape(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	min := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	max := min.AddDate(0, 0, 7)
	require.NoError(t, cache.Set(ctx, "acct-1", "cal-1", min, max, "Europe/Berlin", nil))

	_, ok, err := cache.Get(ctx, "acct-2", "cal-1", min, max, "Europe/Berlin")
	require.NoError(t, err)
	assert.False(t, ok, "different account must not share entries")

	_, ok, err = cache.Get(ctx, "acct-1", "cal-1", min, max, "UTC")
	require.NoError(t, err)
	assert.False(t, ok, "different zone must not share entries")
}

func TestBusyCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	min := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	max := min.AddDate(0, 0, 7)
	require.NoError(t, cache.Set(ctx, "acct-1", "cal-1", min, max, "UTC", []BusyInterval{}))

	mr.FastForward(busyCacheTTL + time.Second)

	_, ok, err := cache.Get(ctx, "acct-1", "cal-1", min, max, "UTC")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBusyCacheNilClientDisabled(t *testing.T) {
	cache := NewBusyCache(nil)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "a", "c", time.Now(), time.Now(), "UTC")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Set(ctx, "a", "c", time.Now(), time.Now(), "UTC", nil))
}
