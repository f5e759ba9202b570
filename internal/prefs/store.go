package prefs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// Well-known preference keys.
const (
	// KeyAuthState holds the encrypted authorization state record.
	KeyAuthState = "appAuthState"

	// KeyWrappedDataKey holds the data encryption key wrapped by the
	// key encryption key pair.
	KeyWrappedDataKey = "wrappedDataEncryptionKey"
)

// DefaultNamespace names the preference file or table partition.
const DefaultNamespace = "appAuthPreference"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("preference not found")

// Store is a namespaced string key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendPG     = "postgres"
	BackendMemory = "memory"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend   string
	Path      string // FileStore directory
	DSN       string // SQLStore connection string
	Namespace string
}

// Open constructs the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}

	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Path, opts.Namespace)
	case BackendSQLite, BackendPG:
		return NewSQLStore(ctx, opts.DSN, opts.Namespace)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown preference backend %q", opts.Backend)
	}
}

// MemoryStore keeps preferences in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Snapshot returns a copy of all stored values.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}
