package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key is an opaque handle to a symmetric data encryption key.
type Key struct {
	alias    string
	backend  string
	material []byte
}

func newKey(alias, backend string, material []byte) (*Key, error) {
	switch len(material) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid AES key length %d", len(material))
	}
	return &Key{alias: alias, backend: backend, material: material}, nil
}

// Alias returns the name the key is stored under.
func (k *Key) Alias() string { return k.alias }

// Backend returns the name of the backend that produced the key.
func (k *Key) Backend() string { return k.backend }

// Size returns the key length in bytes.
func (k *Key) Size() int { return len(k.material) }

// Block returns an AES block cipher keyed with the key.
func (k *Key) Block() (cipher.Block, error) {
	return aes.NewCipher(k.material)
}

// Derive returns n bytes derived from the key with HKDF-SHA256 for the
// given purpose. Different info strings yield independent subkeys.
func (k *Key) Derive(info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.material, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return out, nil
}

// Equal reports whether both handles refer to the same key material.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.material, other.material) == 1
}

// String never prints key material.
func (k *Key) String() string {
	return fmt.Sprintf("Key{alias=%s, backend=%s, bits=%d}", k.alias, k.backend, len(k.material)*8)
}

// GoString never prints key material.
func (k *Key) GoString() string { return k.String() }
