package persistence

import (
	"context"
	"errors"
	"fmt"

	"appauth/internal/authstate"
	"appauth/internal/envelope"
	"appauth/internal/keys"
	"appauth/internal/prefs"
	"appauth/pkg/logging"
)

// KeySource provides the data encryption key.
type KeySource interface {
	DataEncryptionKey(ctx context.Context) (*keys.Key, error)
}

// Gateway loads and saves the encrypted authorization state.
type Gateway struct {
	store     prefs.Store
	keys      KeySource
	cipher    *envelope.Cipher
	fallbacks []*envelope.Cipher
	snapshots SnapshotStore
	slot      string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSnapshotStore enables SaveSnapshot and LoadSnapshot.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(g *Gateway) {
		g.snapshots = s
	}
}

// WithSlot overrides the preference slot holding the encrypted state.
func WithSlot(slot string) Option {
	return func(g *Gateway) {
		g.slot = slot
	}
}

// WithReadCiphers adds ciphers tried, in order, when the primary cipher
// cannot read a stored record. This lets a store written with one suite be
// read after switching to another; the next Save rewrites it.
func WithReadCiphers(ciphers ...*envelope.Cipher) Option {
	return func(g *Gateway) {
		g.fallbacks = append(g.fallbacks, ciphers...)
	}
}

// NewGateway creates a Gateway.
func NewGateway(store prefs.Store, keySource KeySource, cipher *envelope.Cipher, opts ...Option) *Gateway {
	g := &Gateway{
		store:  store,
		keys:   keySource,
		cipher: cipher,
		slot:   prefs.KeyAuthState,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load returns the persisted state, or a fresh empty state if there is none
// or it cannot be read for any reason.
func (g *Gateway) Load(ctx context.Context) *authstate.State {
	s, err := g.TryLoad(ctx)
	if err != nil {
		if errors.Is(err, prefs.ErrNotFound) {
			logging.Debug(logging.SubsystemPersistence, "No persisted authorization state, starting empty")
		} else {
			logging.Warn(logging.SubsystemPersistence, "Discarding unreadable authorization state (%s): %v", authstate.KindOf(err), err)
		}
		return authstate.New()
	}
	return s
}

// TryLoad is Load without the fallback: it reports why the state could not
// be read. prefs.ErrNotFound means nothing was saved.
func (g *Gateway) TryLoad(ctx context.Context) (*authstate.State, error) {
	record, err := g.store.Get(ctx, g.slot)
	if err != nil {
		return nil, err
	}

	key, err := g.keys.DataEncryptionKey(ctx)
	if err != nil {
		return nil, err
	}

	plaintext, err := g.unprotect(key, record)
	if err != nil {
		return nil, err
	}

	return authstate.Deserialize(plaintext)
}

func (g *Gateway) unprotect(key *keys.Key, record string) (string, error) {
	plaintext, err := g.cipher.UnprotectString(key, record)
	if err == nil {
		return plaintext, nil
	}

	for _, c := range g.fallbacks {
		if p, ferr := c.UnprotectString(key, record); ferr == nil {
			logging.Info(logging.SubsystemPersistence, "Read authorization state written with %s, it will be rewritten with %s", c.Suite(), g.cipher.Suite())
			return p, nil
		}
	}
	return "", err
}

// Save persists s. Failures are logged, not returned.
func (g *Gateway) Save(ctx context.Context, s *authstate.State) {
	if err := g.TrySave(ctx, s); err != nil {
		logging.Error(logging.SubsystemPersistence, err, "Failed to persist authorization state")
	}
}

// TrySave is Save that reports failure.
func (g *Gateway) TrySave(ctx context.Context, s *authstate.State) error {
	data, err := s.Serialize()
	if err != nil {
		return err
	}

	key, err := g.keys.DataEncryptionKey(ctx)
	if err != nil {
		return err
	}

	record, err := g.cipher.ProtectString(key, data)
	if err != nil {
		return fmt.Errorf("failed to encrypt authorization state: %w", err)
	}

	if err := g.store.Put(ctx, g.slot, record); err != nil {
		return err
	}

	logging.Debug(logging.SubsystemPersistence, "Persisted authorization state (phase %s)", s.Phase())
	return nil
}

// Clear removes the persisted state and snapshot.
func (g *Gateway) Clear(ctx context.Context) error {
	if err := g.store.Delete(ctx, g.slot); err != nil {
		return err
	}
	if g.snapshots != nil {
		return g.snapshots.Clear(ctx)
	}
	return nil
}
