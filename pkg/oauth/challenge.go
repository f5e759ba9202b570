package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Challenge holds the parameters of a WWW-Authenticate header returned by a
// protected resource (RFC 6750 section 3).
type Challenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// InvalidToken reports whether the resource rejected the presented token,
// which means the client must reauthorize.
func (c *Challenge) InvalidToken() bool {
	return c != nil && c.Error == ErrorCodeInvalidToken
}

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="example"
//	Bearer error="invalid_token", error_description="The access token expired"
func ParseWWWAuthenticate(header string) (*Challenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	scheme, rest, _ := strings.Cut(header, " ")
	challenge := &Challenge{Scheme: scheme}

	for _, match := range authParamRegex.FindAllStringSubmatch(rest, -1) {
		switch strings.ToLower(match[1]) {
		case "realm":
			challenge.Realm = match[2]
		case "scope":
			challenge.Scope = match[2]
		case "error":
			challenge.Error = match[2]
		case "error_description":
			challenge.ErrorDescription = match[2]
		}
	}

	return challenge, nil
}

// ChallengeFromResponse extracts the challenge from a 401 response.
// Returns nil if the response is not a 401 or carries no usable header.
func ChallengeFromResponse(resp *http.Response) *Challenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}
