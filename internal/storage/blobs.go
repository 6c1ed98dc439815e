package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned for a key that was never stored or has been
// released.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds encoded bitmaps. Every Put must be paired with a Delete;
// nothing is released implicitly.
type BlobStore interface {
	Put(data []byte) (string, error)
	Get(key string) ([]byte, error)
	Delete(key string) error
	Len() int
}

// MemoryBlobs keeps blobs in process memory.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobs) Put(data []byte) (string, error) {
	key := uuid.NewString()
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = cp
	return key, nil
}

func (m *MemoryBlobs) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	return data, nil
}

func (m *MemoryBlobs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *MemoryBlobs) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// DiskBlobs keeps blobs as files under a directory.
type DiskBlobs struct {
	dir string

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewDiskBlobs creates dir if needed.
func NewDiskBlobs(dir string) (*DiskBlobs, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &DiskBlobs{dir: dir, keys: make(map[string]struct{})}, nil
}

func (d *DiskBlobs) path(key string) string {
	return filepath.Join(d.dir, key+".bin")
}

func (d *DiskBlobs) Put(data []byte) (string, error) {
	key := uuid.NewString()
	if err := os.WriteFile(d.path(key), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	d.mu.Lock()
	d.keys[key] = struct{}{}
	d.mu.Unlock()
	slog.Debug("Blob written", "key", key, "bytes", len(data))
	return key, nil
}

func (d *DiskBlobs) Get(key string) ([]byte, error) {
	d.mu.Lock()
	_, ok := d.keys[key]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (d *DiskBlobs) Delete(key string) error {
	d.mu.Lock()
	_, ok := d.keys[key]
	delete(d.keys, key)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

func (d *DiskBlobs) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
