package creds

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rtanaka/barchive/internal/crypto"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute)
}

func TestRedisCache_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	_, ok := c.Get(ctx, crypto.PromptFTP, "server-1")
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, crypto.PromptFTP, "server-1", "s3cr3t"))

	got, ok := c.Get(ctx, crypto.PromptFTP, "server-1")
	require.True(t, ok)
	require.Equal(t, "s3cr3t", got)

	// A different name falls back to the kind-wide default written by the
	// same Put.
	got, ok = c.Get(ctx, crypto.PromptFTP, "server-2")
	require.True(t, ok)
	require.Equal(t, "s3cr3t", got)
}

func TestRedisCache_UsableThroughResolver(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)
	r := NewResolver(c, nil)

	require.NoError(t, r.Accept(ctx, crypto.PromptSSH, "host.example.com", "from-redis"))

	got, err := r.Resolve(ctx, crypto.PromptSSH, "host.example.com", "", "")
	require.NoError(t, err)
	require.Equal(t, "from-redis", got)
}
