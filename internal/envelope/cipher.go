package envelope

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"appauth/internal/authstate"
	"appauth/internal/keys"
)

// Suite names a record encryption scheme.
type Suite string

const (
	// SuiteCBC is AES-CBC with PKCS7 padding and no integrity protection.
	SuiteCBC Suite = "aes-cbc-pkcs7"

	// SuiteXChaCha is XChaCha20-Poly1305 under an HKDF subkey of the data key.
	SuiteXChaCha Suite = "xchacha20poly1305"
)

// aeadInfo is the HKDF info string for the XChaCha20-Poly1305 subkey.
const aeadInfo = "appauth envelope xchacha20poly1305 v1"

// ParseSuite validates a configured suite name. Empty selects SuiteCBC.
func ParseSuite(s string) (Suite, error) {
	switch Suite(s) {
	case "", SuiteCBC:
		return SuiteCBC, nil
	case SuiteXChaCha:
		return SuiteXChaCha, nil
	default:
		return "", fmt.Errorf("unknown envelope suite %q", s)
	}
}

// Cipher protects and unprotects values with a keys.Key.
type Cipher struct {
	suite Suite
}

// New creates a Cipher for suite.
func New(suite Suite) *Cipher {
	if suite == "" {
		suite = SuiteCBC
	}
	return &Cipher{suite: suite}
}

// Suite returns the configured suite.
func (c *Cipher) Suite() Suite { return c.suite }

// Protect encrypts plaintext under a fresh random IV.
func (c *Cipher) Protect(key *keys.Key, plaintext []byte) (Record, error) {
	if c.suite == SuiteXChaCha {
		return c.sealAEAD(key, plaintext)
	}
	return c.encryptCBC(key, plaintext)
}

// Unprotect decrypts a record. Any failure, including a wrong key, a
// malformed record or a padding violation, is an authstate.ErrDecryption
// error.
func (c *Cipher) Unprotect(key *keys.Key, rec Record) ([]byte, error) {
	if c.suite == SuiteXChaCha {
		return c.openAEAD(key, rec)
	}
	return c.decryptCBC(key, rec)
}

// ProtectString encrypts plaintext and returns the record's text form.
func (c *Cipher) ProtectString(key *keys.Key, plaintext string) (string, error) {
	rec, err := c.Protect(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return rec.String(), nil
}

// UnprotectString parses and decrypts the text form of a record.
func (c *Cipher) UnprotectString(key *keys.Key, record string) (string, error) {
	rec, err := ParseRecord(record)
	if err != nil {
		return "", err
	}
	plaintext, err := c.Unprotect(key, rec)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Cipher) encryptCBC(key *keys.Key, plaintext []byte) (Record, error) {
	block, err := key.Block()
	if err != nil {
		return Record{}, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return Record{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(append([]byte(nil), plaintext...), block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return Record{IV: iv, Ciphertext: ciphertext}, nil
}

func (c *Cipher) decryptCBC(key *keys.Key, rec Record) ([]byte, error) {
	block, err := key.Block()
	if err != nil {
		return nil, authstate.NewError(authstate.KindDecryption, "cipher unavailable", err)
	}

	bs := block.BlockSize()
	if len(rec.IV) != bs {
		return nil, authstate.Errorf(authstate.KindDecryption, "IV is %d bytes, want %d", len(rec.IV), bs)
	}
	if len(rec.Ciphertext) == 0 || len(rec.Ciphertext)%bs != 0 {
		return nil, authstate.Errorf(authstate.KindDecryption, "ciphertext is not a whole number of blocks")
	}

	plaintext := make([]byte, len(rec.Ciphertext))
	cipher.NewCBCDecrypter(block, rec.IV).CryptBlocks(plaintext, rec.Ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, bs)
	if err != nil {
		return nil, authstate.NewError(authstate.KindDecryption, "wrong key or corrupted record", err)
	}
	return unpadded, nil
}

func (c *Cipher) aead(key *keys.Key) (cipher.AEAD, error) {
	sub, err := key.Derive(aeadInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(sub)
}

func (c *Cipher) sealAEAD(key *keys.Key, plaintext []byte) (Record, error) {
	aead, err := c.aead(key)
	if err != nil {
		return Record{}, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Record{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return Record{IV: nonce, Ciphertext: aead.Seal(nil, nonce, plaintext, nil)}, nil
}

func (c *Cipher) openAEAD(key *keys.Key, rec Record) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, authstate.NewError(authstate.KindDecryption, "cipher unavailable", err)
	}
	if len(rec.IV) != aead.NonceSize() {
		return nil, authstate.Errorf(authstate.KindDecryption, "nonce is %d bytes, want %d", len(rec.IV), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, rec.IV, rec.Ciphertext, nil)
	if err != nil {
		return nil, authstate.NewError(authstate.KindDecryption, "wrong key or tampered record", err)
	}
	return plaintext, nil
}
