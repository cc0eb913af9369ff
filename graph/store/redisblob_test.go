package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisBlobStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	rb := NewRedisBlobStore(client, "", 0)

	t.Run("put and get", func(t *testing.T) {
		data := []byte("redis payload")
		require.NoError(t, rb.Put(ctx, BlobKey("exec-1", 1), data))

		got, err := rb.Get(ctx, BlobKey("exec-1", 1))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("keys carry the default prefix", func(t *testing.T) {
		require.NoError(t, rb.Put(ctx, "raw-key", []byte("v")))
		assert.True(t, mr.Exists("agentgraph:blob:raw-key"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := rb.Get(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, rb.Put(ctx, "temp", []byte("v")))
		require.NoError(t, rb.Delete(ctx, "temp"))

		_, err := rb.Get(ctx, "temp")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is a no-op.
		assert.NoError(t, rb.Delete(ctx, "temp"))
	})
}

func TestRedisBlobStore_CustomPrefix(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	rb := NewRedisBlobStore(client, "wf:states", 0)

	require.NoError(t, rb.Put(ctx, "k", []byte("v")))
	assert.True(t, mr.Exists("wf:states:k"))
}

func TestRedisBlobStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	rb := NewRedisBlobStore(client, "", time.Minute)

	require.NoError(t, rb.Put(ctx, "expiring", []byte("v")))

	// Abandoned payloads age out instead of accumulating forever.
	mr.FastForward(2 * time.Minute)
	_, err := rb.Get(ctx, "expiring")
	assert.ErrorIs(t, err, ErrNotFound)
}
