package keys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"appauth/internal/prefs"
	"appauth/pkg/logging"
)

const (
	// DefaultService is the secret store service name entries are filed under.
	DefaultService = "appauth"

	// DefaultAlias is the alias of the data encryption key.
	DefaultAlias = "data_encryption_key"

	// KeyEncryptionAlias is the alias of the RSA key encryption key pair.
	KeyEncryptionAlias = "key_encryption_key"

	// DefaultCommonName is the subject CN of the pair's self-signed certificate.
	DefaultCommonName = "appauth"

	// DefaultKeyDir is where the file pair store keeps its PEM, relative to
	// the user's home directory.
	DefaultKeyDir = ".config/appauth/keys"

	probeAlias = "appauth_keyring_probe"
)

// Backend modes accepted by SelectBackend.
const (
	ModeAuto    = "auto"
	ModeKeyring = "keyring"
	ModeWrapped = "wrapped"
)

// Backend stores and retrieves data encryption keys.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// DataKey returns the key stored under alias, creating it on first
	// use. A key that exists but cannot be read is an
	// authstate.ErrKeyUnavailable error; it is never silently replaced.
	DataKey(ctx context.Context, alias string) (*Key, error)

	// Delete removes the key under alias and any material protecting it.
	Delete(ctx context.Context, alias string) error
}

// Options configures SelectBackend.
type Options struct {
	// Mode is auto, keyring or wrapped. Empty means auto.
	Mode string

	// Service is the secret store service name.
	Service string

	// KeyDir is the directory for the file pair store.
	KeyDir string

	// CommonName is the subject CN of the pair's certificate.
	CommonName string

	// Prefs holds the wrapped data encryption key.
	Prefs prefs.Store
}

// SelectBackend probes the platform once and returns the backend to use
// for the rest of the process lifetime.
func SelectBackend(ctx context.Context, opts Options) (Backend, error) {
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	if opts.CommonName == "" {
		opts.CommonName = DefaultCommonName
	}

	available := KeyringAvailable(opts.Service)

	switch opts.Mode {
	case "", ModeAuto:
		if available {
			logging.Debug(logging.SubsystemKeys, "Secret store available, using keyring backend")
			return NewKeyringBackend(opts.Service), nil
		}
		logging.Info(logging.SubsystemKeys, "Secret store unavailable, using wrapped key backend")
		return newWrapped(opts, false)
	case ModeKeyring:
		if !available {
			return nil, fmt.Errorf("keyring backend requested but no secret store is available")
		}
		return NewKeyringBackend(opts.Service), nil
	case ModeWrapped:
		return newWrapped(opts, available)
	default:
		return nil, fmt.Errorf("unknown key backend mode %q", opts.Mode)
	}
}

func newWrapped(opts Options, pairInKeyring bool) (Backend, error) {
	if opts.Prefs == nil {
		return nil, errors.New("wrapped key backend needs a preference store")
	}

	var pairs PairStore
	if pairInKeyring {
		pairs = NewKeyringPairStore(opts.Service)
	} else {
		dir := opts.KeyDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, DefaultKeyDir)
		}
		pairs = NewFilePairStore(dir)
	}

	return NewWrappedBackend(pairs, opts.Prefs, opts.CommonName), nil
}

// KeyringAvailable reports whether the platform secret store accepts a
// write, read and delete round trip.
func KeyringAvailable(service string) bool {
	if err := keyring.Set(service, probeAlias, "ok"); err != nil {
		logging.Debug(logging.SubsystemKeys, "Keyring probe write failed: %v", err)
		return false
	}
	defer func() {
		_ = keyring.Delete(service, probeAlias)
	}()

	v, err := keyring.Get(service, probeAlias)
	return err == nil && v == "ok"
}
