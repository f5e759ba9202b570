package envelope

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"appauth/internal/authstate"
	"appauth/internal/keys"
)

func testKey(t *testing.T, alias string) *keys.Key {
	t.Helper()
	keyring.MockInit()
	k, err := keys.NewManager(keys.NewKeyringBackend("appauth-envelope-test")).Key(context.Background(), alias)
	require.NoError(t, err)
	return k
}

var suites = []Suite{SuiteCBC, SuiteXChaCha}

func TestRoundTrip(t *testing.T) {
	key := testKey(t, "roundtrip")

	plaintexts := [][]byte{
		{},
		[]byte("a"),
		[]byte("exactly 16 bytes"),
		[]byte(strings.Repeat("x", 1000)),
		{0, 1, 2, 255},
	}

	for _, suite := range suites {
		c := New(suite)
		for _, p := range plaintexts {
			t.Run(fmt.Sprintf("%s/%d bytes", suite, len(p)), func(t *testing.T) {
				rec, err := c.Protect(key, p)
				require.NoError(t, err)

				out, err := c.Unprotect(key, rec)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(p, out))

				parsed, err := ParseRecord(rec.String())
				require.NoError(t, err)
				out, err = c.Unprotect(key, parsed)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(p, out))
			})
		}
	}
}

func TestProtectRandomizesIV(t *testing.T) {
	key := testKey(t, "iv")

	for _, suite := range suites {
		t.Run(string(suite), func(t *testing.T) {
			c := New(suite)
			seen := make(map[string]bool)
			for i := 0; i < 50; i++ {
				s, err := c.ProtectString(key, "same plaintext")
				require.NoError(t, err)
				assert.False(t, seen[s], "record repeated")
				seen[s] = true
			}
		})
	}
}

func TestRecordFormat(t *testing.T) {
	key := testKey(t, "format")

	s, err := New(SuiteCBC).ProtectString(key, "hello")
	require.NoError(t, err)

	parts := strings.Split(s, ".")
	require.Len(t, parts, 2)
	assert.NotContains(t, s, "=")
	assert.NotContains(t, s, "\n")

	iv, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, aes.BlockSize)

	got, err := New(SuiteCBC).UnprotectString(key, s)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestParseRecordAcceptsStandardAlphabet(t *testing.T) {
	rec := Record{IV: bytes.Repeat([]byte{0xfb}, 16), Ciphertext: bytes.Repeat([]byte{0xff}, 32)}

	std := base64.RawStdEncoding.EncodeToString(rec.IV) + "." + base64.StdEncoding.EncodeToString(rec.Ciphertext)
	require.True(t, strings.ContainsAny(std, "+/"))

	parsed, err := ParseRecord(std)
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)
}

func TestParseRecordMalformed(t *testing.T) {
	for _, s := range []string{"", "abc", ".abc", "abc.", "a.b.c", "!!!.abc", "abc.$$$"} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseRecord(s)
			assert.ErrorIs(t, err, authstate.ErrDecryption)
		})
	}
}

func TestUnprotectFailures(t *testing.T) {
	key := testKey(t, "failures")
	other := testKey(t, "other")

	t.Run("cbc wrong key never returns the plaintext", func(t *testing.T) {
		c := New(SuiteCBC)
		rec, err := c.Protect(key, []byte("secret value"))
		require.NoError(t, err)

		out, err := c.Unprotect(other, rec)
		if err == nil {
			assert.NotEqual(t, "secret value", string(out))
		} else {
			assert.ErrorIs(t, err, authstate.ErrDecryption)
		}
	})

	t.Run("aead wrong key", func(t *testing.T) {
		c := New(SuiteXChaCha)
		rec, err := c.Protect(key, []byte("secret value"))
		require.NoError(t, err)

		_, err = c.Unprotect(other, rec)
		assert.ErrorIs(t, err, authstate.ErrDecryption)
	})

	t.Run("aead detects tampering", func(t *testing.T) {
		c := New(SuiteXChaCha)
		rec, err := c.Protect(key, []byte("secret value"))
		require.NoError(t, err)

		rec.Ciphertext[0] ^= 0x01
		_, err = c.Unprotect(key, rec)
		assert.ErrorIs(t, err, authstate.ErrDecryption)
	})

	t.Run("cbc bad padding", func(t *testing.T) {
		block, err := key.Block()
		require.NoError(t, err)

		iv := make([]byte, aes.BlockSize)
		plain := bytes.Repeat([]byte{0x00}, aes.BlockSize)
		ct := make([]byte, len(plain))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

		_, err = New(SuiteCBC).Unprotect(key, Record{IV: iv, Ciphertext: ct})
		assert.ErrorIs(t, err, authstate.ErrDecryption)
	})

	t.Run("truncated ciphertext", func(t *testing.T) {
		c := New(SuiteCBC)
		rec, err := c.Protect(key, []byte("secret value"))
		require.NoError(t, err)
		rec.Ciphertext = rec.Ciphertext[:5]

		_, err = c.Unprotect(key, rec)
		assert.ErrorIs(t, err, authstate.ErrDecryption)
	})

	t.Run("short IV", func(t *testing.T) {
		for _, suite := range suites {
			_, err := New(suite).Unprotect(key, Record{IV: []byte{1, 2}, Ciphertext: make([]byte, 32)})
			assert.ErrorIs(t, err, authstate.ErrDecryption, suite)
		}
	})
}

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 32; n++ {
		data := bytes.Repeat([]byte{'a'}, n)
		padded := pkcs7Pad(append([]byte(nil), data...), 16)
		assert.Zero(t, len(padded)%16)
		assert.Greater(t, len(padded), n)

		out, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}

	for _, bad := range [][]byte{
		{},
		bytes.Repeat([]byte{0}, 16),
		bytes.Repeat([]byte{17}, 16),
		append(bytes.Repeat([]byte{'a'}, 14), 3, 2),
		bytes.Repeat([]byte{1}, 15),
	} {
		_, err := pkcs7Unpad(bad, 16)
		assert.Error(t, err)
	}
}

func TestParseSuite(t *testing.T) {
	s, err := ParseSuite("")
	require.NoError(t, err)
	assert.Equal(t, SuiteCBC, s)

	s, err = ParseSuite("xchacha20poly1305")
	require.NoError(t, err)
	assert.Equal(t, SuiteXChaCha, s)

	_, err = ParseSuite("rot13")
	assert.Error(t, err)

	assert.Equal(t, SuiteCBC, New("").Suite())
}
