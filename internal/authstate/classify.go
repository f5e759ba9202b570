package authstate

import (
	"context"
	"errors"
	"net"
	"strconv"

	"golang.org/x/oauth2"

	"appauth/pkg/oauth"
)

// Classify converts an arbitrary error into an *Error.
//
// Errors that already carry a Kind are returned unchanged. Transport
// failures become NetworkError. A token endpoint error response becomes
// TokenExchangeError with the server's error code, or UnexpectedHttpStatus
// when the body carried no code. Anything else is an AuthorizationError.
//
// Callers that know more (for example that a failed request was a
// refresh) should classify before calling Update.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "" {
			code := ""
			if retrieveErr.Response != nil {
				code = strconv.Itoa(retrieveErr.Response.StatusCode)
			}
			return &Error{Kind: KindUnexpectedHTTPStatus, Code: code, Description: "token endpoint returned an unexpected response", Err: err}
		}
		return &Error{
			Kind:        KindTokenExchange,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
			Err:         err,
		}
	}

	var oauthErr *oauth.ErrorResponse
	if errors.As(err, &oauthErr) {
		return &Error{Kind: KindUnexpectedHTTPStatus, Code: oauthErr.Code, Description: oauthErr.Description, Err: err}
	}

	if IsNetworkError(err) {
		return &Error{Kind: KindNetwork, Description: err.Error(), Err: err}
	}

	return &Error{Kind: KindAuthorization, Description: err.Error(), Err: err}
}

// IsNetworkError reports whether err is a timeout or connection failure.
func IsNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
