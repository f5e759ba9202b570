package keys

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"appauth/pkg/logging"
)

// Manager hands out the data encryption key. Lookups for the same alias
// are coalesced so that concurrent first use creates exactly one key, and
// resolved keys are cached for the life of the Manager.
type Manager struct {
	backend Backend
	alias   string

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Key
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAlias overrides the data encryption key alias.
func WithAlias(alias string) ManagerOption {
	return func(m *Manager) {
		m.alias = alias
	}
}

// NewManager creates a Manager on top of backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend: backend,
		alias:   DefaultAlias,
		cache:   make(map[string]*Key),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackendName returns the name of the selected backend.
func (m *Manager) BackendName() string {
	return m.backend.Name()
}

// DataEncryptionKey returns the data encryption key, creating it on first use.
func (m *Manager) DataEncryptionKey(ctx context.Context) (*Key, error) {
	return m.Key(ctx, m.alias)
}

// Key returns the key stored under alias, creating it on first use.
func (m *Manager) Key(ctx context.Context, alias string) (*Key, error) {
	if k := m.cached(alias); k != nil {
		return k, nil
	}

	result, err, shared := m.group.Do(alias, func() (interface{}, error) {
		if k := m.cached(alias); k != nil {
			return k, nil
		}

		k, err := m.backend.DataKey(ctx, alias)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.cache[alias] = k
		m.mu.Unlock()
		return k, nil
	})
	if err != nil {
		logging.Error(logging.SubsystemKeys, err, "Data encryption key %s unavailable from %s backend", alias, m.backend.Name())
		return nil, err
	}
	if shared {
		logging.Debug(logging.SubsystemKeys, "Coalesced concurrent lookup of %s", alias)
	}

	return result.(*Key), nil
}

func (m *Manager) cached(alias string) *Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[alias]
}

// Destroy deletes the data encryption key and everything protecting it.
// Records encrypted under the old key become unreadable.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	delete(m.cache, m.alias)
	m.mu.Unlock()

	if err := m.backend.Delete(ctx, m.alias); err != nil {
		return err
	}

	logging.Warn(logging.SubsystemKeys, "SECURITY_AUDIT: data encryption key %s destroyed (%s backend)", m.alias, m.backend.Name())
	return nil
}
