package authstate

import (
	"time"
)

// Response is a successful result of an authorization flow step.
// It is implemented by *AuthorizationResponse and *TokenResponse.
type Response interface {
	isResponse()
}

// AuthorizationResponse is what the authorization endpoint returned
// through the redirect.
type AuthorizationResponse struct {
	Code  string
	State string
}

func (*AuthorizationResponse) isResponse() {}

// TokenResponse is what the token endpoint returned.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string

	// Expiry is zero when the server did not send expires_in.
	Expiry time.Time
}

func (*TokenResponse) isResponse() {}

// Update merges the result of one authorization flow step into the state.
// Exactly one of resp and err should be non-nil.
//
// An AuthorizationResponse starts a new grant: previous tokens and any
// latched error are discarded. A TokenResponse replaces the tokens,
// keeping the existing refresh and ID tokens when the server omits them.
// An error is classified; protocol errors are latched, and a
// RefreshRequired error also drops the tokens that can no longer be used.
//
// Update returns the classified error, or nil.
func (s *State) Update(resp Response, err error) *Error {
	return s.updateAt(time.Now(), resp, err)
}

func (s *State) updateAt(now time.Time, resp Response, err error) *Error {
	if err != nil {
		return s.applyError(now, Classify(err))
	}

	switch r := resp.(type) {
	case *AuthorizationResponse:
		s.clearTokens()
		s.LastAuthorizationException = nil
		s.LastAuthorizationResponse = &AuthorizationResponse{Code: r.Code, State: r.State}
	case *TokenResponse:
		s.applyTokens(r)
	}
	return nil
}

func (s *State) applyTokens(r *TokenResponse) {
	s.AccessToken = r.AccessToken
	if r.RefreshToken != "" {
		s.RefreshToken = r.RefreshToken
	}
	if r.IDToken != "" {
		s.IDToken = r.IDToken
	}
	if r.TokenType != "" {
		s.TokenType = r.TokenType
	}
	if r.Scope != "" {
		s.Scope = r.Scope
	}
	if r.Expiry.IsZero() {
		s.AccessTokenExpirationTime = nil
	} else {
		exp := truncate(r.Expiry)
		s.AccessTokenExpirationTime = &exp
	}
	s.NeedsTokenRefresh = false
	s.LastAuthorizationException = nil
}

func (s *State) applyError(now time.Time, e *Error) *Error {
	if !e.Kind.Latched() {
		return e
	}
	if e.Kind == KindRefreshRequired {
		s.clearTokens()
	}
	s.LastAuthorizationException = e.Record(now)
	return e
}

func (s *State) clearTokens() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.IDToken = ""
	s.TokenType = ""
	s.AccessTokenExpirationTime = nil
	s.NeedsTokenRefresh = false
}
