package authstate

import (
	"time"
)

// DefaultRefreshMargin is how close to expiry an access token may get
// before it is refreshed proactively.
const DefaultRefreshMargin = 60 * time.Second

// Phase is the coarse position of a State in the authorization lifecycle.
type Phase string

const (
	PhaseUnauthorized         Phase = "Unauthorized"
	PhaseAuthorizationPending Phase = "AuthorizationPending"
	PhaseAuthorized           Phase = "Authorized"
	PhaseNeedsReauthorization Phase = "NeedsReauthorization"
)

// ServiceConfiguration holds the issuer endpoints that issued the tokens.
type ServiceConfiguration struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	RevocationEndpoint    string
	UserinfoEndpoint      string
}

// PendingAuthorizationRequest is the context of an authorization request
// that has been handed to the browser but not yet answered.
type PendingAuthorizationRequest struct {
	CodeVerifier string
	State        string
	RedirectURI  string
	Scope        string
	CreatedAt    time.Time
}

// ErrorRecord is the persisted form of a latched Error.
type ErrorRecord struct {
	Kind        Kind
	Code        string
	Description string
	OccurredAt  time.Time
}

// Err rebuilds the *Error described by the record.
func (r *ErrorRecord) Err() *Error {
	if r == nil {
		return nil
	}
	return &Error{Kind: r.Kind, Code: r.Code, Description: r.Description}
}

// State is the authorization state of one local user.
//
// Empty strings mean absent. Timestamps are persisted at millisecond
// precision. Update and SetPending truncate the times they record, so a State
// built through them survives Serialize/Deserialize unchanged; a caller that
// sets AccessTokenExpirationTime or CreatedAt directly gets the value back
// truncated to the millisecond.
type State struct {
	AccessToken               string
	RefreshToken              string
	IDToken                   string
	TokenType                 string
	AccessTokenExpirationTime *time.Time

	// NeedsTokenRefresh forces a refresh on the next fresh-token action,
	// whether or not the access token has expired.
	NeedsTokenRefresh bool

	Issuer   string
	ClientID string
	Scope    string

	ServiceConfiguration        *ServiceConfiguration
	PendingAuthorizationRequest *PendingAuthorizationRequest
	LastAuthorizationResponse   *AuthorizationResponse
	LastAuthorizationException  *ErrorRecord
}

// New returns an empty, unauthorized State.
func New() *State {
	return &State{}
}

// Reset returns the State to its empty form.
func (s *State) Reset() {
	*s = State{}
}

// IsAuthorized reports whether the state holds a usable credential: a
// non-expired access token or a refresh token, with no latched error.
func (s *State) IsAuthorized() bool {
	return s.isAuthorizedAt(time.Now())
}

func (s *State) isAuthorizedAt(now time.Time) bool {
	if s.LastAuthorizationException != nil {
		return false
	}
	if s.RefreshToken != "" {
		return true
	}
	return s.AccessToken != "" && !s.accessTokenExpiredAt(now, 0)
}

// AccessTokenExpired reports whether the access token is missing, expired,
// or expires within margin. A token without an expiration time never
// expires.
func (s *State) AccessTokenExpired(margin time.Duration) bool {
	return s.accessTokenExpiredAt(time.Now(), margin)
}

func (s *State) accessTokenExpiredAt(now time.Time, margin time.Duration) bool {
	if s.AccessToken == "" {
		return true
	}
	if s.AccessTokenExpirationTime == nil {
		return false
	}
	return !now.Add(margin).Before(*s.AccessTokenExpirationTime)
}

// NeedsRefresh reports whether a fresh-token action must refresh first.
func (s *State) NeedsRefresh(margin time.Duration) bool {
	if s.RefreshToken == "" {
		return false
	}
	return s.NeedsTokenRefresh || s.AccessTokenExpired(margin)
}

// Phase derives the lifecycle phase.
func (s *State) Phase() Phase {
	switch {
	case s.PendingAuthorizationRequest != nil:
		return PhaseAuthorizationPending
	case s.LastAuthorizationException != nil && s.LastAuthorizationException.Kind == KindRefreshRequired:
		return PhaseNeedsReauthorization
	case s.IsAuthorized():
		return PhaseAuthorized
	default:
		return PhaseUnauthorized
	}
}

// LastError returns the latched error, or nil.
func (s *State) LastError() *Error {
	return s.LastAuthorizationException.Err()
}

// SetPending replaces any outstanding authorization request.
func (s *State) SetPending(req *PendingAuthorizationRequest) {
	if req != nil {
		c := *req
		c.CreatedAt = truncate(c.CreatedAt)
		req = &c
	}
	s.PendingAuthorizationRequest = req
}

// ClearPending drops the outstanding authorization request.
func (s *State) ClearPending() {
	s.PendingAuthorizationRequest = nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.AccessTokenExpirationTime != nil {
		t := *s.AccessTokenExpirationTime
		c.AccessTokenExpirationTime = &t
	}
	if s.ServiceConfiguration != nil {
		sc := *s.ServiceConfiguration
		c.ServiceConfiguration = &sc
	}
	if s.PendingAuthorizationRequest != nil {
		p := *s.PendingAuthorizationRequest
		c.PendingAuthorizationRequest = &p
	}
	if s.LastAuthorizationResponse != nil {
		r := *s.LastAuthorizationResponse
		c.LastAuthorizationResponse = &r
	}
	if s.LastAuthorizationException != nil {
		e := *s.LastAuthorizationException
		c.LastAuthorizationException = &e
	}
	return &c
}

// truncate drops sub-millisecond precision and the monotonic reading so
// that times compare equal after a round trip through Serialize.
func truncate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.UnixMilli(t.UnixMilli())
}
