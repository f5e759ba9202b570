package oauth

import (
	"fmt"
	"slices"

	"golang.org/x/oauth2"
)

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414, which is a superset of what OIDC discovery returns for the
// fields appauth consumes.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RevocationEndpoint is the URL of the token revocation endpoint (RFC 7009).
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// UserinfoEndpoint is the URL of the userinfo endpoint (OIDC).
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// EndSessionEndpoint is the RP-initiated logout endpoint (OIDC).
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	// JwksURI is the URL of the JSON Web Key Set.
	JwksURI string `json:"jwks_uri,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the response_type values supported.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the grant types supported.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (m *Metadata) SupportsPKCE() bool {
	// Servers that do not advertise methods are assumed to accept S256.
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	return slices.Contains(m.CodeChallengeMethodsSupported, "S256")
}

// Validate checks that the endpoints required for the authorization code
// flow are present.
func (m *Metadata) Validate() error {
	if m.AuthorizationEndpoint == "" {
		return fmt.Errorf("metadata for %q has no authorization_endpoint", m.Issuer)
	}
	if m.TokenEndpoint == "" {
		return fmt.Errorf("metadata for %q has no token_endpoint", m.Issuer)
	}
	return nil
}

// Endpoint converts the metadata into an oauth2.Endpoint. Client
// credentials are always sent in the request body, which works for public
// clients and for confidential clients using client_secret_post.
func (m *Metadata) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   m.AuthorizationEndpoint,
		TokenURL:  m.TokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept by the client and sent only with the token request.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier, sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// ErrorResponse is the JSON error body defined in RFC 6749 section 5.2 and
// reused by RFC 7009 for revocation failures.
type ErrorResponse struct {
	// StatusCode is the HTTP status that carried the body. Not part of the JSON.
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %q (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("oauth error %q (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Standard error codes referenced by the flow.
const (
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeAccessDenied   = "access_denied"
)
