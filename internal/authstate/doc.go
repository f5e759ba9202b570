// Package authstate holds the authorization state entity: the current
// tokens, their expiry, the issuer's endpoints, any outstanding
// authorization request and the last latched protocol error.
//
// State is a plain value with no locking. It has one owner at a time;
// internal/authflow serializes all mutations through a single goroutine.
//
// The phases a State moves through are
//
//	Unauthorized -> AuthorizationPending -> Authorized -> NeedsReauthorization -> Unauthorized
//
// Update is the single mutation point for results of the authorization
// flow. Serialize and Deserialize convert the whole entity, tokens and
// endpoints together, to and from the opaque string that
// internal/persistence encrypts.
//
// This package also defines the error taxonomy shared by the rest of
// appauth (see Error and Kind).
package authstate
