package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecost/backend/internal/domain"
)

// newTestRedis connects to TRUECOST_TEST_REDIS_ADDR (redis://host:port/db) under a
// random key prefix, or skips the test when it is unset.
func newTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("TRUECOST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRUECOST_TEST_REDIS_ADDR not set")
	}

	c, err := NewRedisCache(context.Background(), addr, "truecost-test:"+uuid.NewString()+":")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_Expiry(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 100*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return errors.Is(err, domain.ErrCacheMiss)
	}, 2*time.Second, 50*time.Millisecond)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 is reserved and refuses connections
	_, err := NewRedisCache(ctx, "redis://127.0.0.1:1/0", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}
