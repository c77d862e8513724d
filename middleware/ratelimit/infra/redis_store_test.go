package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCounterStore_WindowLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	n, err := s.IncrementAndGet(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ttl, ok, err := s.TTL(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, ttl)

	set, err := s.ExpireIfNoTTL(ctx, "rl:window:c", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = s.ExpireIfNoTTL(ctx, "rl:window:c", time.Hour)
	require.NoError(t, err)
	assert.False(t, set, "existing ttl must not be replaced")

	ttl, ok, err = s.TTL(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, ttl)

	n, err = s.IncrementAndGet(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, time.Minute, mr.TTL("rl:window:c"), "INCR keeps ttl")

	mr.FastForward(time.Minute)

	_, ok, err = s.Get(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.TTL(ctx, "rl:window:c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCounterStore_ExpireIfNoTTLOnMissingKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	set, err := s.ExpireIfNoTTL(context.Background(), "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestRedisCounterStore_SetTTLAndDelete(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	_, err := s.IncrementAndGet(ctx, "rl:backoff:c")
	require.NoError(t, err)
	require.NoError(t, s.SetTTL(ctx, "rl:backoff:c", 2*time.Minute))
	require.NoError(t, s.SetTTL(ctx, "rl:backoff:c", 4*time.Minute))
	assert.Equal(t, 4*time.Minute, mr.TTL("rl:backoff:c"))

	n, ok, err := s.Get(ctx, "rl:backoff:c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.Delete(ctx, "rl:backoff:c", "rl:window:c"))
	assert.False(t, mr.Exists("rl:backoff:c"))
	require.NoError(t, s.Delete(ctx))
}

func TestRedisCounterStore_UnavailableWrapsSentinel(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	mr.Close()

	ctx := context.Background()
	_, err := s.IncrementAndGet(ctx, "k")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable), "got %v", err)

	_, _, err = s.TTL(ctx, "k")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	assert.Error(t, s.Ping(ctx))
}

func TestRedisCounterStore_GetNonNumeric(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("k", "abc"))

	_, _, err := NewRedisCounterStore(rdb).Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMillis(t *testing.T) {
	assert.EqualValues(t, 1, millis(0))
	assert.EqualValues(t, 1, millis(time.Microsecond))
	assert.EqualValues(t, 1500, millis(1500*time.Millisecond))
}

func TestRedisCounterStore_IncrementWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	n, err := s.IncrementWithTTL(ctx, "rl:backoff:c", 2*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 2*time.Minute, mr.TTL("rl:backoff:c"))

	n, err = s.IncrementWithTTL(ctx, "rl:backoff:c", 3*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 3*time.Minute, mr.TTL("rl:backoff:c"))

	mr.FastForward(3 * time.Minute)
	assert.False(t, mr.Exists("rl:backoff:c"))

	mr.Close()
	_, err = s.IncrementWithTTL(ctx, "rl:backoff:c", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}
