// Package envelope protects opaque byte strings with the data encryption
// key from internal/keys.
//
// A protected value is a Record: a fresh random IV (or nonce) and the
// ciphertext. Its text form is the two parts base64url encoded without
// padding and joined by a single '.':
//
//	<iv>.<ciphertext>
//
// Two suites are available. SuiteCBC (the default) is AES-CBC with PKCS7
// padding and provides confidentiality only; it reads records written by
// earlier versions of the application. SuiteXChaCha is
// XChaCha20-Poly1305 under a subkey derived from the data key and also
// detects tampering. Both share the record format.
package envelope
