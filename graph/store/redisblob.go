package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore keeps oversized state payloads in Redis, letting many
// engine hosts share one blob tier. Payloads are stored under
// "<prefix>:<key>" with an optional TTL for automatic cleanup of
// abandoned executions.
type RedisBlobStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBlobStore wraps an existing Redis client. prefix defaults to
// "agentgraph:blob"; ttl zero means payloads never expire.
func NewRedisBlobStore(client *redis.Client, prefix string, ttl time.Duration) *RedisBlobStore {
	if prefix == "" {
		prefix = "agentgraph:blob"
	}
	return &RedisBlobStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisBlobStore) key(key string) string {
	return r.prefix + ":" + key
}

// Put implements BlobStore.
func (r *RedisBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis blob put %s: %w", key, err)
	}
	return nil
}

// Get implements BlobStore.
func (r *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis blob get %s: %w", key, err)
	}
	return data, nil
}

// Delete implements BlobStore. Deleting a missing key is not an error.
func (r *RedisBlobStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis blob delete %s: %w", key, err)
	}
	return nil
}
