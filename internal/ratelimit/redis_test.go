package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreCountsWithinWindow(t *testing.T) {
	store, _ := newRedisTestStore(t)

	for i := int64(1); i <= 5; i++ {
		count, resetAt, err := store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
	}
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	store, mr := newRedisTestStore(t)

	count, _, err := store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	mr.FastForward(61 * time.Second)

	count, _, err = store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "expired key should restart the count")
}

func TestRedisStoreKeysAreIndependent(t *testing.T) {
	store, _ := newRedisTestStore(t)

	for i := 0; i < 3; i++ {
		_, _, err := store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
		require.NoError(t, err)
	}

	count, _, err := store.Incr(context.Background(), "strict:1.2.3.4", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStoreReArmsMissingExpiry(t *testing.T) {
	store, mr := newRedisTestStore(t)

	_, _, err := store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)

	// Simulate a crash between INCR and EXPIRE leaving a persistent key.
	require.NoError(t, store.client.Persist(context.Background(), "rl:auth:1.2.3.4").Err())

	_, resetAt, err := store.Incr(context.Background(), "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
	assert.Greater(t, mr.TTL("rl:auth:1.2.3.4"), time.Duration(0))
}

func TestLimiterOverRedis(t *testing.T) {
	store, _ := newRedisTestStore(t)
	limiter := New(store)

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Check(context.Background(), NamespaceStrict, "1.2.3.4").Allowed)
	}
	assert.False(t, limiter.Check(context.Background(), NamespaceStrict, "1.2.3.4").Allowed)
}
