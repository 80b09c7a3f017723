package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps each collection as <dir>/<collection>.json.
// Versions are tracked in memory, so only one process may own a directory.
type FileBackend struct {
	dir string

	mu       sync.Mutex
	versions map[string]int64
}

// NewFileBackend creates the data directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir, versions: make(map[string]int64)}, nil
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

// version returns the in-memory stamp, seeding it from disk on first use. Callers hold b.mu.
func (b *FileBackend) version(collection string) int64 {
	if v, ok := b.versions[collection]; ok {
		return v
	}
	var v int64
	if _, err := os.Stat(b.path(collection)); err == nil {
		v = 1
	}
	b.versions[collection] = v
	return v
}

func (b *FileBackend) Load(ctx context.Context, collection string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	version := b.version(collection)
	data, err := os.ReadFile(b.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Data: data, Version: version}, nil
}

func (b *FileBackend) Save(ctx context.Context, collection string, data []byte, baseVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.version(collection) != baseVersion {
		return 0, ErrStaleVersion
	}

	tmp, err := os.CreateTemp(b.dir, collection+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), b.path(collection)); err != nil {
		return 0, err
	}

	next := baseVersion + 1
	b.versions[collection] = next
	return next, nil
}

func (b *FileBackend) Close() error { return nil }
