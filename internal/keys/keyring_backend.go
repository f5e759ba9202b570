package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"

	"appauth/internal/authstate"
)

// dataKeySize is the size of keys created in the secret store (AES-256).
const dataKeySize = 32

// KeyringBackend keeps the data encryption key in the platform secret store.
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a KeyringBackend filing entries under service.
func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{service: service}
}

func (b *KeyringBackend) Name() string { return ModeKeyring }

func (b *KeyringBackend) DataKey(ctx context.Context, alias string) (*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := keyring.Get(b.service, alias)
	if errors.Is(err, keyring.ErrNotFound) {
		return b.create(alias)
	}
	if err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "read %s from keyring: %w", alias, err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "keyring entry %s is corrupt: %w", alias, err)
	}
	key, err := newKey(alias, b.Name(), raw)
	if err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "keyring entry %s is corrupt: %w", alias, err)
	}
	return key, nil
}

func (b *KeyringBackend) create(alias string) (*Key, error) {
	raw := make([]byte, dataKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "generate data key: %w", err)
	}

	if err := keyring.Set(b.service, alias, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "store %s in keyring: %w", alias, err)
	}

	slog.Info("SECURITY_AUDIT: data encryption key created",
		"event", "data_key_created",
		"backend", b.Name(),
		"alias", alias,
		"bits", dataKeySize*8,
	)

	return newKey(alias, b.Name(), raw)
}

func (b *KeyringBackend) Delete(_ context.Context, alias string) error {
	err := keyring.Delete(b.service, alias)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
