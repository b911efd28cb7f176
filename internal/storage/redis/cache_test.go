package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, time.Minute)
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, c := setupCache(t)

	_, ok, err := c.Get(ctx, "u1", 6)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "u1", 6, 0, []string{"p3", "p1"}))
	require.NoError(t, c.Set(ctx, "u1", 2, 0, []string{}))

	ids, ok, err := c.Get(ctx, "u1", 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p3", "p1"}, ids)

	ids, ok, err = c.Get(ctx, "u1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, ids)

	assert.Equal(t, time.Minute, mr.TTL("loyalty:reco:u1"))
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	mr, c := setupCache(t)

	require.NoError(t, c.Set(ctx, "u1", 6, 0, []string{"p1"}))
	require.NoError(t, c.Set(ctx, "u2", 6, 0, []string{"p2"}))
	require.NoError(t, c.Invalidate(ctx, "u1"))

	assert.False(t, mr.Exists("loyalty:reco:u1"))
	_, ok, err := c.Get(ctx, "u2", 6)
	require.NoError(t, err)
	assert.True(t, ok)

	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, time.Minute, mr.TTL("loyalty:reco:u1:gen"))
}

func TestCache_SetSkipsStaleGeneration(t *testing.T) {
	ctx := context.Background()
	mr, c := setupCache(t)

	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	// A settlement commits while the ranking is computed.
	require.NoError(t, c.Invalidate(ctx, "u1"))
	require.NoError(t, c.Set(ctx, "u1", 6, gen, []string{"stale"}))
	assert.False(t, mr.Exists("loyalty:reco:u1"))

	gen, err = c.Generation(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "u1", 6, gen, []string{"fresh"}))
	ids, ok, err := c.Get(ctx, "u1", 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestCache_Expires(t *testing.T) {
	ctx := context.Background()
	mr, c := setupCache(t)

	require.NoError(t, c.Set(ctx, "u1", 6, 0, []string{"p1"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "u1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ServerDown(t *testing.T) {
	mr, c := setupCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "u1", 6)
	require.Error(t, err)
	_, err = c.Generation(context.Background(), "u1")
	require.Error(t, err)
	require.Error(t, c.Set(context.Background(), "u1", 6, 0, []string{"p1"}))
}
