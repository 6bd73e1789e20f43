package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCache connects to the Redis named by NEWSRAG_TEST_REDIS_URL, or
// skips the test when the variable is unset.
func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("NEWSRAG_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NEWSRAG_TEST_REDIS_URL not set; skipping redis tests")
	}
	c, err := NewRedisCache(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := "newsrag:test:" + t.Name()

	require.NoError(t, c.SetWithExpiry(ctx, key, []byte(`{"hello":"world"}`), time.Minute))
	t.Cleanup(func() { c.Delete(ctx, key) })

	value, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"hello":"world"}`), value)

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheMissIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	value, ok, err := c.Get(context.Background(), "newsrag:test:never-written")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestNewRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing redis url")
}
