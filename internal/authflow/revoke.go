package authflow

import (
	"context"
	"errors"
	"strconv"

	"appauth/internal/audit"
	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

type revokeRequest struct {
	endpoint string
	clientID string
	token    string
	hint     string
}

// Revoke invalidates the grant at the issuer and then resets the state.
//
// The refresh token is revoked when present, otherwise the access token.
// A 200 response, or a 400 response with error invalid_token, counts as
// success. Any other outcome is a RevocationError and the state is kept.
// Without a revocation endpoint the state is reset locally.
func (s *Service) Revoke(ctx context.Context) error {
	req, err := onOwner(ctx, s, func(state *authstate.State) revokeRequest {
		r := revokeRequest{clientID: state.ClientID}
		if state.ServiceConfiguration != nil {
			r.endpoint = state.ServiceConfiguration.RevocationEndpoint
		}
		switch {
		case state.RefreshToken != "":
			r.token, r.hint = state.RefreshToken, "refresh_token"
		case state.AccessToken != "":
			r.token, r.hint = state.AccessToken, "access_token"
		}
		return r
	})
	if err != nil {
		return err
	}

	detail := "revoked at issuer"
	switch {
	case req.token == "":
		detail = "no token to revoke"
	case req.endpoint == "":
		detail = "issuer has no revocation endpoint"
		logging.Info(logging.SubsystemAuthFlow, "No revocation endpoint configured, resetting locally")
	default:
		_, err = worker.Submit(ctx, s.pool, "revoke token", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.oauth.RevokeToken(ctx, req.endpoint, req.clientID, s.clientSecret, req.token, req.hint)
		}).Await(ctx)
		if err != nil {
			rerr := revocationError(err)
			logging.Warn(logging.SubsystemAuthFlow, "Token revocation failed: %s", rerr.Error())
			return rerr
		}
	}

	return s.mutate(ctx, func(state *authstate.State) error {
		state.Reset()
		s.emit(ctx, audit.EventRevoked, state, detail)
		logging.Info(logging.SubsystemAuthFlow, "Authorization revoked (%s)", detail)
		return nil
	})
}

func revocationError(err error) *authstate.Error {
	e := authstate.NewError(authstate.KindRevocation, "revocation endpoint did not accept the request", err)
	var errResp *oauth.ErrorResponse
	if errors.As(err, &errResp) {
		e.Code = errResp.Code
		if e.Code == "" {
			e.Code = strconv.Itoa(errResp.StatusCode)
		}
		if errResp.Description != "" {
			e.Description = errResp.Description
		}
	}
	return e
}
