// Package logging provides subsystem-tagged structured logging for appauth,
// built on log/slog.
//
// # Log Levels
//   - Debug: protocol detail (discovery URLs, cache hits)
//   - Info: state transitions and successful operations
//   - Warn: recovered failures (fallback to empty state, swallowed saves)
//   - Error: failures surfaced to the caller
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Persistence", "Loaded authorization state from %s", slot)
//	logging.Error("Keys", err, "Failed to unwrap data encryption key")
//
// Components that take an injected *slog.Logger use For:
//
//	client := oauth.NewClient(oauth.WithLogger(logging.For("Discovery")))
//
// # Subsystems
//
//   - Keys: key manager and keystore backends
//   - Envelope: record protection
//   - Persistence: encrypted state and UI snapshot
//   - AuthFlow: authorization, token exchange, refresh, revocation
//   - Worker: bounded HTTP worker
//   - Config: configuration loading
//   - Audit: audit event sinks
//   - Discovery: OAuth metadata client
//
// Token values are never passed to this package. Use oauth.RedactedToken when a
// token has to travel through a struct that may be logged.
package logging
