package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheFixture(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestCacheMissThenHit(t *testing.T) {
	cache, _ := cacheFixture(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	val, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestCacheDelete(t *testing.T) {
	cache, _ := cacheFixture(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "k"))

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := cacheFixture(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestProcessedTracker(t *testing.T) {
	cache, mr := cacheFixture(t)
	tracker := NewProcessedTracker(cache, time.Hour)
	ctx := context.Background()

	done, err := tracker.AlreadyProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tracker.MarkProcessed(ctx, "stripe", "evt_1"))

	done, err = tracker.AlreadyProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, done)

	// Same event id under another provider is a different key.
	done, err = tracker.AlreadyProcessed(ctx, "paypal", "evt_1")
	require.NoError(t, err)
	assert.False(t, done)

	// Markers expire; the database unique index still holds afterwards.
	mr.FastForward(2 * time.Hour)
	done, err = tracker.AlreadyProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, done)
}
