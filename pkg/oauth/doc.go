// Package oauth provides the OAuth 2.0 and OpenID Connect protocol helpers
// used by the appauth authorization flow.
//
// This package contains the parts of the protocol that do not depend on
// where authorization state is stored or how it is encrypted. State
// management lives in internal/authstate and the flow itself in
// internal/authflow.
//
// # Core Components
//
//   - Metadata: OAuth/OIDC authorization server metadata (RFC 8414, OIDC Discovery)
//   - Client: metadata discovery with caching, authorization URL building and
//     token revocation (RFC 7009)
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Challenge: parsed WWW-Authenticate header from a protected resource
//   - IDTokenClaims: display-only claims decoded from an ID token
//   - RedactedToken: a string wrapper that never prints its value
//
// # Usage
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
//	pkce, err := oauth.GeneratePKCE()
//	authURL, err := client.BuildAuthorizationURL(metadata.AuthorizationEndpoint,
//	    clientID, redirectURI, state, scope, pkce)
//
// Token exchange and refresh are delegated to golang.org/x/oauth2; use
// metadata.Endpoint() to build the oauth2.Config.
package oauth
