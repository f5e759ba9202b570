package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"

	"appauth/internal/authstate"
	"appauth/internal/prefs"
)

// wrappedKeySize is the size of software generated data keys (AES-128).
const wrappedKeySize = 16

// WrappedBackend generates the data encryption key in software and keeps it
// only in wrapped form, encrypted to an RSA key encryption key pair.
type WrappedBackend struct {
	pairs      PairStore
	prefs      prefs.Store
	commonName string
}

// NewWrappedBackend creates a WrappedBackend.
func NewWrappedBackend(pairs PairStore, store prefs.Store, commonName string) *WrappedBackend {
	if commonName == "" {
		commonName = DefaultCommonName
	}
	return &WrappedBackend{pairs: pairs, prefs: store, commonName: commonName}
}

func (b *WrappedBackend) Name() string { return ModeWrapped }

// wrappedSlot names the preference that holds the wrapped form of alias.
func wrappedSlot(alias string) string {
	if alias == DefaultAlias {
		return prefs.KeyWrappedDataKey
	}
	return alias + ".wrapped"
}

func (b *WrappedBackend) DataKey(ctx context.Context, alias string) (*Key, error) {
	wrapped, err := b.prefs.Get(ctx, wrappedSlot(alias))
	hasWrapped := err == nil
	if err != nil && !errors.Is(err, prefs.ErrNotFound) {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "read wrapped data key: %w", err)
	}

	priv, err := b.pairs.Load(KeyEncryptionAlias)
	switch {
	case errors.Is(err, ErrPairNotFound) && hasWrapped:
		return nil, authstate.Errorf(authstate.KindKeyUnavailable,
			"wrapped data key present but key encryption key pair is missing from %s store", b.pairs.Name())
	case errors.Is(err, ErrPairNotFound):
		if priv, err = b.createPair(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "load key encryption key pair: %w", err)
	}

	if !hasWrapped {
		return b.create(ctx, alias, priv)
	}
	return b.unwrap(alias, priv, wrapped)
}

func (b *WrappedBackend) createPair() (*rsa.PrivateKey, error) {
	priv, certDER, err := generatePair(b.commonName)
	if err != nil {
		return nil, authstate.NewError(authstate.KindKeyUnavailable, "generate key encryption key pair", err)
	}
	if err := b.pairs.Save(KeyEncryptionAlias, priv, certDER); err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "store key encryption key pair: %w", err)
	}

	slog.Info("SECURITY_AUDIT: key encryption key pair created",
		"event", "kek_pair_created",
		"store", b.pairs.Name(),
		"alias", KeyEncryptionAlias,
		"bits", pairBits,
	)
	return priv, nil
}

func (b *WrappedBackend) create(ctx context.Context, alias string, priv *rsa.PrivateKey) (*Key, error) {
	raw := make([]byte, wrappedKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "generate data key: %w", err)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, raw, []byte(alias))
	if err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "wrap data key: %w", err)
	}
	if err := b.prefs.Put(ctx, wrappedSlot(alias), base64.RawURLEncoding.EncodeToString(ciphertext)); err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "store wrapped data key: %w", err)
	}

	slog.Info("SECURITY_AUDIT: data encryption key created",
		"event", "data_key_created",
		"backend", b.Name(),
		"alias", alias,
		"bits", wrappedKeySize*8,
	)

	return newKey(alias, b.Name(), raw)
}

func (b *WrappedBackend) unwrap(alias string, priv *rsa.PrivateKey, wrapped string) (*Key, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "wrapped data key is not valid base64: %w", err)
	}

	raw, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, []byte(alias))
	if err != nil {
		slog.Warn("SECURITY_AUDIT: data encryption key unwrap failed",
			"event", "data_key_unwrap_failed",
			"backend", b.Name(),
			"alias", alias,
		)
		return nil, authstate.Errorf(authstate.KindKeyUnavailable, "unwrap data key: %w", err)
	}

	key, err := newKey(alias, b.Name(), raw)
	if err != nil {
		return nil, authstate.NewError(authstate.KindKeyUnavailable, "unwrapped data key has wrong size", err)
	}
	return key, nil
}

func (b *WrappedBackend) Delete(ctx context.Context, alias string) error {
	if err := b.prefs.Delete(ctx, wrappedSlot(alias)); err != nil {
		return err
	}
	return b.pairs.Delete(KeyEncryptionAlias)
}
