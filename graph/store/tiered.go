package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultInlineThreshold is the payload size above which states are
// offloaded to the blob store. 16 KiB keeps typical states inline while
// sparing the document store from large documents.
const DefaultInlineThreshold = 16 * 1024

// TieredStore layers storage tiering and a read cache over a document
// Store. State payloads at or below the inline threshold are stored
// directly in the document record; larger payloads go to the blob store
// and the record carries only a pointer. Loads are served from a bounded,
// time-expiring cache when possible; the backing store remains the source
// of truth.
//
// All non-state operations pass through to the inner store unchanged.
type TieredStore struct {
	inner     Store
	blobs     BlobStore
	threshold int

	cache *stateCache
}

// TieredOption configures a TieredStore.
type TieredOption func(*TieredStore)

// WithInlineThreshold overrides the inline payload size limit in bytes.
func WithInlineThreshold(n int) TieredOption {
	return func(t *TieredStore) { t.threshold = n }
}

// WithCache bounds the read cache: at most entries items, each expiring
// after ttl. Zero entries disables caching.
func WithCache(entries int, ttl time.Duration) TieredOption {
	return func(t *TieredStore) { t.cache = newStateCache(entries, ttl) }
}

// NewTieredStore wraps a document store and a blob store. blobs may be
// nil, in which case every payload is stored inline regardless of size.
func NewTieredStore(inner Store, blobs BlobStore, opts ...TieredOption) *TieredStore {
	t := &TieredStore{
		inner:     inner,
		blobs:     blobs,
		threshold: DefaultInlineThreshold,
		cache:     newStateCache(256, time.Minute),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SaveState implements Store, offloading oversized payloads. The blob is
// written before the document record so the record never points at a
// payload that is not durable.
func (t *TieredStore) SaveState(ctx context.Context, rec StateRecord) error {
	payload := rec.Payload
	if t.blobs != nil && len(payload) > t.threshold {
		key := BlobKey(rec.ExecutionID, rec.Version)
		if err := t.blobs.Put(ctx, key, payload); err != nil {
			return fmt.Errorf("offload state %s v%d: %w", rec.ExecutionID, rec.Version, err)
		}
		rec.Blob = &BlobRef{Key: key, Size: int64(len(payload))}
		rec.Payload = nil
	}
	if err := t.inner.SaveState(ctx, rec); err != nil {
		return err
	}
	t.cache.put(rec.ExecutionID, rec.Version, payload)
	return nil
}

// LoadState implements Store, resolving blob pointers and consulting the
// cache first.
func (t *TieredStore) LoadState(ctx context.Context, executionID string, version int) (StateRecord, error) {
	if payload, ok := t.cache.get(executionID, version); ok {
		return StateRecord{ExecutionID: executionID, Version: version, Payload: payload}, nil
	}
	rec, err := t.inner.LoadState(ctx, executionID, version)
	if err != nil {
		return StateRecord{}, err
	}
	return t.resolve(ctx, rec)
}

// LoadLatest implements Store, resolving blob pointers.
func (t *TieredStore) LoadLatest(ctx context.Context, executionID string) (StateRecord, error) {
	rec, err := t.inner.LoadLatest(ctx, executionID)
	if err != nil {
		return StateRecord{}, err
	}
	return t.resolve(ctx, rec)
}

func (t *TieredStore) resolve(ctx context.Context, rec StateRecord) (StateRecord, error) {
	if rec.Blob != nil {
		if t.blobs == nil {
			return StateRecord{}, fmt.Errorf("state %s v%d: blob reference without blob store", rec.ExecutionID, rec.Version)
		}
		payload, err := t.blobs.Get(ctx, rec.Blob.Key)
		if err != nil {
			return StateRecord{}, fmt.Errorf("resolve state %s v%d: %w", rec.ExecutionID, rec.Version, err)
		}
		rec.Payload = payload
	}
	t.cache.put(rec.ExecutionID, rec.Version, rec.Payload)
	return rec, nil
}

// SaveCheckpoint implements Store.
func (t *TieredStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	return t.inner.SaveCheckpoint(ctx, cp)
}

// LoadCheckpoint implements Store.
func (t *TieredStore) LoadCheckpoint(ctx context.Context, id string) (Checkpoint, error) {
	return t.inner.LoadCheckpoint(ctx, id)
}

// ListCheckpoints implements Store.
func (t *TieredStore) ListCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error) {
	return t.inner.ListCheckpoints(ctx, executionID)
}

// SaveBreakpoint implements Store.
func (t *TieredStore) SaveBreakpoint(ctx context.Context, bp BreakpointRecord) error {
	return t.inner.SaveBreakpoint(ctx, bp)
}

// ListBreakpoints implements Store.
func (t *TieredStore) ListBreakpoints(ctx context.Context, executionID string) ([]BreakpointRecord, error) {
	return t.inner.ListBreakpoints(ctx, executionID)
}

// DeleteBreakpoint implements Store.
func (t *TieredStore) DeleteBreakpoint(ctx context.Context, id string) error {
	return t.inner.DeleteBreakpoint(ctx, id)
}

// DeleteExecution implements Store, dropping cached entries as well.
func (t *TieredStore) DeleteExecution(ctx context.Context, executionID string) error {
	t.cache.dropExecution(executionID)
	return t.inner.DeleteExecution(ctx, executionID)
}

// stateCache is a bounded, time-expiring payload cache. Eviction is by
// expiry first, then oldest insertion. It is a pure performance
// optimization: a miss always falls through to the backing store.
type stateCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]cacheEntry
	order   []string
}

type cacheEntry struct {
	payload []byte
	expires time.Time
}

func newStateCache(max int, ttl time.Duration) *stateCache {
	return &stateCache{max: max, ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(executionID string, version int) string {
	return fmt.Sprintf("%s#%d", executionID, version)
}

func (c *stateCache) put(executionID string, version int, payload []byte) {
	if c.max <= 0 || payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(executionID, version)
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{
		payload: append([]byte(nil), payload...),
		expires: time.Now().Add(c.ttl),
	}
	for len(c.entries) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *stateCache) get(executionID string, version int) ([]byte, bool) {
	if c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(executionID, version)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]byte(nil), entry.payload...), true
}

func (c *stateCache) dropExecution(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := executionID + "#"
	for key := range c.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}
