package authstate

import (
	"encoding/json"
	"fmt"
	"time"
)

// serializationVersion is bumped when the document layout changes in a way
// older readers cannot accept.
const serializationVersion = 1

type document struct {
	Version int       `json:"version"`
	State   stateJSON `json:"state"`
}

type stateJSON struct {
	AccessToken               string `json:"accessToken,omitempty"`
	RefreshToken              string `json:"refreshToken,omitempty"`
	IDToken                   string `json:"idToken,omitempty"`
	TokenType                 string `json:"tokenType,omitempty"`
	AccessTokenExpirationTime *int64 `json:"accessTokenExpirationTime,omitempty"`
	NeedsTokenRefresh         bool   `json:"needsTokenRefresh,omitempty"`

	Issuer   string `json:"issuer,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	Scope    string `json:"scope,omitempty"`

	Config        *configJSON      `json:"config,omitempty"`
	Pending       *pendingJSON     `json:"pendingRequest,omitempty"`
	LastResponse  *responseJSON    `json:"lastAuthorizationResponse,omitempty"`
	LastException *errorRecordJSON `json:"lastAuthorizationException,omitempty"`
}

type configJSON struct {
	AuthorizationEndpoint string `json:"authorizationEndpoint"`
	TokenEndpoint         string `json:"tokenEndpoint"`
	RevocationEndpoint    string `json:"revocationEndpoint,omitempty"`
	UserinfoEndpoint      string `json:"userinfoEndpoint,omitempty"`
}

type pendingJSON struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
	RedirectURI  string `json:"redirectUri"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

type responseJSON struct {
	Code  string `json:"code,omitempty"`
	State string `json:"state,omitempty"`
}

type errorRecordJSON struct {
	Kind        Kind   `json:"type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"errorDescription,omitempty"`
	OccurredAt  int64  `json:"occurredAt,omitempty"`
}

// Serialize encodes the complete state, including tokens, as an opaque
// string. The result contains credentials and must be encrypted before it
// is stored. Times are written as Unix milliseconds; any finer precision is
// dropped and Deserialize returns the truncated value.
func (s *State) Serialize() (string, error) {
	doc := document{Version: serializationVersion, State: toJSON(s)}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize authorization state: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes a string produced by Serialize. Malformed input, or a
// document from an unknown version, yields an error of kind StateCorrupted.
func Deserialize(data string) (*State, error) {
	if data == "" {
		return nil, Errorf(KindStateCorrupted, "empty authorization state")
	}

	var doc document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, NewError(KindStateCorrupted, "authorization state is not valid JSON", err)
	}
	if doc.Version != serializationVersion {
		return nil, Errorf(KindStateCorrupted, "unsupported authorization state version %d", doc.Version)
	}

	s := fromJSON(doc.State)
	if s.LastAuthorizationException != nil && s.LastAuthorizationException.Kind == "" {
		return nil, Errorf(KindStateCorrupted, "latched error has no kind")
	}
	return s, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toJSON(s *State) stateJSON {
	j := stateJSON{
		AccessToken:       s.AccessToken,
		RefreshToken:      s.RefreshToken,
		IDToken:           s.IDToken,
		TokenType:         s.TokenType,
		NeedsTokenRefresh: s.NeedsTokenRefresh,
		Issuer:            s.Issuer,
		ClientID:          s.ClientID,
		Scope:             s.Scope,
	}
	if s.AccessTokenExpirationTime != nil {
		ms := s.AccessTokenExpirationTime.UnixMilli()
		j.AccessTokenExpirationTime = &ms
	}
	if c := s.ServiceConfiguration; c != nil {
		j.Config = &configJSON{
			AuthorizationEndpoint: c.AuthorizationEndpoint,
			TokenEndpoint:         c.TokenEndpoint,
			RevocationEndpoint:    c.RevocationEndpoint,
			UserinfoEndpoint:      c.UserinfoEndpoint,
		}
	}
	if p := s.PendingAuthorizationRequest; p != nil {
		j.Pending = &pendingJSON{
			CodeVerifier: p.CodeVerifier,
			State:        p.State,
			RedirectURI:  p.RedirectURI,
			Scope:        p.Scope,
			CreatedAt:    millis(p.CreatedAt),
		}
	}
	if r := s.LastAuthorizationResponse; r != nil {
		j.LastResponse = &responseJSON{Code: r.Code, State: r.State}
	}
	if e := s.LastAuthorizationException; e != nil {
		j.LastException = &errorRecordJSON{
			Kind:        e.Kind,
			Code:        e.Code,
			Description: e.Description,
			OccurredAt:  millis(e.OccurredAt),
		}
	}
	return j
}

func fromJSON(j stateJSON) *State {
	s := &State{
		AccessToken:       j.AccessToken,
		RefreshToken:      j.RefreshToken,
		IDToken:           j.IDToken,
		TokenType:         j.TokenType,
		NeedsTokenRefresh: j.NeedsTokenRefresh,
		Issuer:            j.Issuer,
		ClientID:          j.ClientID,
		Scope:             j.Scope,
	}
	if j.AccessTokenExpirationTime != nil {
		t := time.UnixMilli(*j.AccessTokenExpirationTime)
		s.AccessTokenExpirationTime = &t
	}
	if c := j.Config; c != nil {
		s.ServiceConfiguration = &ServiceConfiguration{
			AuthorizationEndpoint: c.AuthorizationEndpoint,
			TokenEndpoint:         c.TokenEndpoint,
			RevocationEndpoint:    c.RevocationEndpoint,
			UserinfoEndpoint:      c.UserinfoEndpoint,
		}
	}
	if p := j.Pending; p != nil {
		s.PendingAuthorizationRequest = &PendingAuthorizationRequest{
			CodeVerifier: p.CodeVerifier,
			State:        p.State,
			RedirectURI:  p.RedirectURI,
			Scope:        p.Scope,
			CreatedAt:    fromMillis(p.CreatedAt),
		}
	}
	if r := j.LastResponse; r != nil {
		s.LastAuthorizationResponse = &AuthorizationResponse{Code: r.Code, State: r.State}
	}
	if e := j.LastException; e != nil {
		s.LastAuthorizationException = &ErrorRecord{
			Kind:        e.Kind,
			Code:        e.Code,
			Description: e.Description,
			OccurredAt:  fromMillis(e.OccurredAt),
		}
	}
	return s
}
