package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobKey builds the canonical blob key for a state version.
func BlobKey(executionID string, version int) string {
	return fmt.Sprintf("%s/v%d", executionID, version)
}

// FSBlobStore keeps oversized state payloads as files under a root
// directory, one file per state version. Suitable for single-host
// deployments and local development.
type FSBlobStore struct {
	root string
	mu   sync.Mutex
}

// NewFSBlobStore creates the root directory if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSBlobStore{root: root}, nil
}

// path maps a blob key onto the filesystem. Keys use "/" separators;
// path traversal components are rejected.
func (f *FSBlobStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

// Put implements BlobStore. Writes go through a temp file and rename so
// a crash never leaves a partially written payload behind.
func (f *FSBlobStore) Put(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("blob put %s: %w", key, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("blob put %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blob put %s: %w", key, err)
	}
	return nil
}

// Get implements BlobStore.
func (f *FSBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- path is validated against traversal above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob get %s: %w", key, err)
	}
	return data, nil
}

// Delete implements BlobStore. Deleting a missing key is not an error.
func (f *FSBlobStore) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob delete %s: %w", key, err)
	}
	return nil
}
