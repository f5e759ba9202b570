// Package keys manages the data encryption key that protects the persisted
// authorization state.
//
// The key is obtained through a Backend selected once at startup by
// SelectBackend:
//
//   - KeyringBackend keeps an AES-256 key under a fixed alias in the
//     platform secret store (macOS Keychain, Secret Service, Windows
//     Credential Manager).
//   - WrappedBackend generates a 16 byte key, wraps it with an RSA-2048
//     key encryption key pair using OAEP, and keeps the wrapped form in the
//     preference store. The pair lives in the secret store when one is
//     reachable and in a 0600 PEM file otherwise.
//
// Callers receive an opaque *Key. Raw key bytes never leave this package;
// a Key only hands out a cipher.Block or a derived subkey.
//
// A key that exists but cannot be read (locked keyring, corrupt entry,
// failed unwrap) is reported as authstate.ErrKeyUnavailable. It is never
// replaced automatically, because a new key would make every stored record
// undecryptable. Manager.Destroy is the explicit way out.
package keys
