package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	// pairBits is the RSA modulus size of the key encryption key pair.
	pairBits = 2048

	// certValidity is the validity window of the pair's self-signed
	// certificate. The certificate is never presented to anyone.
	certValidity = 10 * 365 * 24 * time.Hour

	pemPrivateKey  = "PRIVATE KEY"
	pemCertificate = "CERTIFICATE"
)

// ErrPairNotFound is returned by a PairStore that holds no pair under the alias.
var ErrPairNotFound = errors.New("key encryption key pair not found")

// PairStore persists the RSA key encryption key pair.
type PairStore interface {
	Name() string
	Load(alias string) (*rsa.PrivateKey, error)
	Save(alias string, key *rsa.PrivateKey, certDER []byte) error
	Delete(alias string) error
}

// generatePair creates an RSA-2048 pair and a self-signed certificate
// (serial 1, CN=commonName) for it.
func generatePair(commonName string) (*rsa.PrivateKey, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, pairBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	notBefore := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(certValidity),
		KeyUsage:     x509.KeyUsageKeyEncipherment,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to self-sign key encryption certificate: %w", err)
	}
	return priv, certDER, nil
}

func encodePrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateKey, Bytes: der}), nil
}

func decodePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("no private key PEM block")
		}
		if block.Type != pemPrivateKey {
			continue
		}

		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, not RSA", parsed)
		}
		return key, nil
	}
}

// FilePairStore keeps the pair as <dir>/<alias>.pem with 0600 permissions.
type FilePairStore struct {
	dir string
}

// NewFilePairStore creates a FilePairStore rooted at dir.
func NewFilePairStore(dir string) *FilePairStore {
	return &FilePairStore{dir: dir}
}

func (s *FilePairStore) Name() string { return "file" }

func (s *FilePairStore) path(alias string) string {
	return filepath.Join(s.dir, alias+".pem")
}

func (s *FilePairStore) Load(alias string) (*rsa.PrivateKey, error) {
	// #nosec G304 -- alias is a package constant
	data, err := os.ReadFile(s.path(alias))
	if os.IsNotExist(err) {
		return nil, ErrPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key pair: %w", err)
	}
	return decodePrivateKey(data)
}

func (s *FilePairStore) Save(alias string, key *rsa.PrivateKey, certDER []byte) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	keyPEM, err := encodePrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	data := append(keyPEM, pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: certDER})...)

	// O_EXCL so that two processes can never both install a pair.
	f, err := os.OpenFile(s.path(alias), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key pair file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key pair file: %w", err)
	}
	return f.Close()
}

func (s *FilePairStore) Delete(alias string) error {
	err := os.Remove(s.path(alias))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// KeyringPairStore keeps the pair in the platform secret store: the private
// key under alias and the certificate under alias+".crt".
type KeyringPairStore struct {
	service string
}

// NewKeyringPairStore creates a KeyringPairStore filing entries under service.
func NewKeyringPairStore(service string) *KeyringPairStore {
	return &KeyringPairStore{service: service}
}

func (s *KeyringPairStore) Name() string { return ModeKeyring }

func (s *KeyringPairStore) Load(alias string) (*rsa.PrivateKey, error) {
	v, err := keyring.Get(s.service, alias)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrPairNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodePrivateKey([]byte(v))
}

func (s *KeyringPairStore) Save(alias string, key *rsa.PrivateKey, certDER []byte) error {
	keyPEM, err := encodePrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := keyring.Set(s.service, alias, string(keyPEM)); err != nil {
		return err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: certDER})
	return keyring.Set(s.service, alias+".crt", string(certPEM))
}

func (s *KeyringPairStore) Delete(alias string) error {
	for _, name := range []string{alias, alias + ".crt"} {
		if err := keyring.Delete(s.service, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
	}
	return nil
}
