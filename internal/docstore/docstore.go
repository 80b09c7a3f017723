// Package docstore keeps whole-collection JSON documents. Every write is a
// read-modify-write of one collection, serialized per collection and
// guarded by a version stamp so concurrent writers never lose updates.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"campusconnect/internal/metrics"
)

// Collection names.
const (
	Users            = "users"
	Events           = "events"
	PracticeSessions = "practice-sessions"
	Notifications    = "notifications"
	RoleRequests     = "role-requests"
	AuditLogs        = "audit-logs"
	Announcements    = "announcements"
	Clubs            = "clubs"
)

var (
	// ErrStaleVersion is returned by Backend.Save when the collection changed since it was loaded.
	ErrStaleVersion = errors.New("docstore: stale collection version")
	// ErrNoChange may be returned from a Mutate callback to skip the write.
	ErrNoChange = errors.New("docstore: no change")
)

const maxAttempts = 3

// Snapshot is the raw content of a collection plus its version stamp.
// Version 0 means the collection does not exist yet.
type Snapshot struct {
	Data    []byte
	Version int64
}

// Backend persists raw collection documents.
type Backend interface {
	Load(ctx context.Context, collection string) (Snapshot, error)
	// Save replaces the collection if its current version equals baseVersion
	// and returns the new version.
	Save(ctx context.Context, collection string, data []byte, baseVersion int64) (int64, error)
	Close() error
}

// Store serializes writers per collection on top of a Backend.
type Store struct {
	backend Backend

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New wraps a backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, locks: make(map[string]chan struct{})}
}

// Close closes the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) lock(ctx context.Context, collection string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[collection]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[collection] = l
	}
	s.mu.Unlock()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w", collection, ctx.Err())
	}
}

func decode[T any](collection string, snap Snapshot) ([]T, error) {
	if len(snap.Data) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(snap.Data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Load returns every record of a collection, or an empty slice when it does not exist.
func Load[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	snap, err := s.backend.Load(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	return decode[T](collection, snap)
}

// Mutate runs fn over the current records and writes back what it returns.
// fn may run more than once if another process wrote the collection
// concurrently, so it must not have side effects outside the slice.
func Mutate[T any](ctx context.Context, s *Store, collection string, fn func([]T) ([]T, error)) error {
	unlock, err := s.lock(ctx, collection)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		snap, err := s.backend.Load(ctx, collection)
		if err != nil {
			return fmt.Errorf("load %s: %w", collection, err)
		}
		items, err := decode[T](collection, snap)
		if err != nil {
			return err
		}
		items, err = fn(items)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}
		if items == nil {
			items = []T{}
		}
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode %s: %w", collection, err)
		}
		_, err = s.backend.Save(ctx, collection, data, snap.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStaleVersion) || attempt >= maxAttempts {
			return fmt.Errorf("save %s: %w", collection, err)
		}
		metrics.StoreRetries.WithLabelValues(collection).Inc()
		slog.Debug("collection changed underneath, retrying", "collection", collection, "attempt", attempt)
	}
}
