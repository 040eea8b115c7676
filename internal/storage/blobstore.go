// Package storage provides the key-value blob stores the task collection is
// persisted to: YAML files on disk, a SQLite table, Redis, and an in-memory
// map.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// validKeyPattern restricts keys to names that are safe as file names.
var validKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

func validateKey(key string) error {
	if !validKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

// FileBlobStore keeps each key in its own <key>.yaml file under a directory.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a FileBlobStore rooted at dir. The directory is
// created on first write.
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{dir: dir}
}

func (s *FileBlobStore) path(key string) string {
	return filepath.Join(s.dir, key+".yaml")
}

// Read returns the contents stored under key, or ok=false if there are none.
func (s *FileBlobStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, true, nil
}

// Write replaces the contents stored under key atomically, holding an
// exclusive lock on <key>.yaml.lock while it does.
func (s *FileBlobStore) Write(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("writing blob %s: creating directory: %w", key, err)
	}

	path := s.path(key)
	// The CLI and the MCP server may write the same key from separate
	// processes; they share the temp file name.
	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	defer func() { _ = unlock() }()

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing blob %s: writing temp file: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing blob %s: renaming: %w", key, err)
	}
	return nil
}

// LockKey holds an exclusive lock on <key>.yaml.txlock until unlock is
// called. Writers that read, modify and write back key take it first so a
// second process cannot slip a write in between. It is separate from the
// lock Write takes, so Write may be called while it is held.
func (s *FileBlobStore) LockKey(_ context.Context, key string) (func() error, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("locking blob %s: creating directory: %w", key, err)
	}
	unlock, err := lockFile(s.path(key) + ".txlock")
	if err != nil {
		return nil, fmt.Errorf("locking blob %s: %w", key, err)
	}
	return unlock, nil
}

// Close is a no-op; it lets FileBlobStore satisfy the same shape as the
// database-backed stores.
func (s *FileBlobStore) Close() error {
	return nil
}

// MemoryBlobStore is a map-backed store for tests and ephemeral sessions.
type MemoryBlobStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	writes int
}

// NewMemoryBlobStore creates an empty MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryBlobStore) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Writes returns how many writes the store has accepted.
func (s *MemoryBlobStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryBlobStore) Close() error {
	return nil
}
