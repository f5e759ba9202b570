package authstate

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies failures across the authorization flow, key management
// and persistence.
type Kind string

const (
	KindDiscovery            Kind = "DiscoveryError"
	KindAuthorization        Kind = "AuthorizationError"
	KindTokenExchange        Kind = "TokenExchangeError"
	KindRefreshRequired      Kind = "RefreshRequiredError"
	KindRevocation           Kind = "RevocationError"
	KindKeyUnavailable       Kind = "KeyUnavailable"
	KindDecryption           Kind = "DecryptionError"
	KindStateCorrupted       Kind = "StateCorrupted"
	KindNetwork              Kind = "NetworkError"
	KindUnexpectedHTTPStatus Kind = "UnexpectedHttpStatus"
)

// Latched reports whether errors of this kind are recorded in
// State.LastAuthorizationException. Only OAuth protocol outcomes are
// latched; transport and local failures are not.
func (k Kind) Latched() bool {
	switch k {
	case KindAuthorization, KindTokenExchange, KindRefreshRequired:
		return true
	default:
		return false
	}
}

// Error is the typed error used throughout appauth.
type Error struct {
	Kind Kind

	// Code is the OAuth error code (e.g. invalid_grant) or an HTTP status
	// rendered as text, when one is known.
	Code string

	// Description is a human readable explanation.
	Description string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinel values for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrDiscovery            = &Error{Kind: KindDiscovery}
	ErrAuthorization        = &Error{Kind: KindAuthorization}
	ErrTokenExchange        = &Error{Kind: KindTokenExchange}
	ErrRefreshRequired      = &Error{Kind: KindRefreshRequired}
	ErrRevocation           = &Error{Kind: KindRevocation}
	ErrKeyUnavailable       = &Error{Kind: KindKeyUnavailable}
	ErrDecryption           = &Error{Kind: KindDecryption}
	ErrStateCorrupted       = &Error{Kind: KindStateCorrupted}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrUnexpectedHTTPStatus = &Error{Kind: KindUnexpectedHTTPStatus}
)

// NewError creates an Error of the given kind wrapping err.
func NewError(kind Kind, description string, err error) *Error {
	return &Error{Kind: kind, Description: description, Err: err}
}

// Errorf creates an Error of the given kind with a formatted description.
// A %w verb in format is honoured as the wrapped cause.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Description: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// WithCode returns a copy of e carrying the given OAuth error code.
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	switch {
	case e.Description != "":
		msg += ": " + e.Description
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, authstate.ErrRefreshRequired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Record converts the error into its persisted form.
func (e *Error) Record(now time.Time) *ErrorRecord {
	desc := e.Description
	if desc == "" && e.Err != nil {
		desc = e.Err.Error()
	}
	return &ErrorRecord{
		Kind:        e.Kind,
		Code:        e.Code,
		Description: desc,
		OccurredAt:  truncate(now),
	}
}
