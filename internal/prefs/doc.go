// Package prefs provides the small key-value preference store that holds
// appauth's persisted values: the encrypted authorization state record and,
// on the wrapped key backend, the wrapped data encryption key.
//
// Values are opaque strings. Callers are responsible for encrypting
// anything sensitive before it reaches a Store; no backend here encrypts.
//
// Backends:
//
//   - FileStore: a single JSON document with 0600 permissions
//   - SQLStore: a table in SQLite or PostgreSQL, driver detected from the DSN
//   - MemoryStore: process-local, for tests and ephemeral runs
package prefs
