package authflow

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"appauth/internal/audit"
	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// Action receives a usable access token, or an error explaining why there
// is none.
type Action func(accessToken, idToken string, err error)

type tokenSnapshot struct {
	accessToken  string
	idToken      string
	needsRefresh bool
	err          error
}

func (s *Service) snapshotTokens(state *authstate.State) tokenSnapshot {
	if e := state.LastError(); e != nil {
		return tokenSnapshot{err: e}
	}
	if state.AccessToken == "" && state.RefreshToken == "" {
		return tokenSnapshot{err: authstate.Errorf(authstate.KindAuthorization, "not authorized")}
	}
	if state.RefreshToken == "" && state.AccessTokenExpired(0) {
		return tokenSnapshot{err: authstate.Errorf(authstate.KindRefreshRequired, "access token expired and no refresh token is available")}
	}
	return tokenSnapshot{
		accessToken:  state.AccessToken,
		idToken:      state.IDToken,
		needsRefresh: state.NeedsRefresh(s.margin),
	}
}

// PerformActionWithFreshToken calls action with a current access token.
//
// The token is refreshed first when NeedsTokenRefresh is set or the access
// token expires within the refresh margin. A rejected refresh token moves
// the state to NeedsReauthorization; action is then called with empty
// tokens and the error, which is also returned. After a successful action
// NeedsTokenRefresh is cleared.
func (s *Service) PerformActionWithFreshToken(ctx context.Context, action Action) error {
	snap, err := onOwner(ctx, s, s.snapshotTokens)
	if err == nil {
		err = snap.err
	}
	if err == nil && snap.needsRefresh {
		if err = s.refresh(ctx); err == nil {
			snap, err = onOwner(ctx, s, s.snapshotTokens)
			if err == nil {
				err = snap.err
			}
		}
	}
	if err != nil {
		action("", "", err)
		return err
	}

	action(snap.accessToken, snap.idToken, nil)

	_, err = onOwner(ctx, s, func(state *authstate.State) struct{} {
		if state.NeedsTokenRefresh {
			state.NeedsTokenRefresh = false
			s.notify(ctx, state)
		}
		return struct{}{}
	})
	return err
}

type refreshRequest struct {
	refreshToken string
	clientID     string
	authURL      string
	tokenURL     string
	scope        string
}

// refresh runs one refresh_token grant. Concurrent callers share it.
func (s *Service) refresh(ctx context.Context) error {
	_, err, shared := s.refreshes.Do("refresh", func() (interface{}, error) {
		return nil, s.doRefresh(ctx)
	})
	if shared {
		logging.Debug(logging.SubsystemAuthFlow, "Joined in-flight token refresh")
	}
	return err
}

func (s *Service) doRefresh(ctx context.Context) error {
	req, err := onOwnerErr(ctx, s, func(state *authstate.State) (*refreshRequest, error) {
		if state.RefreshToken == "" {
			return nil, authstate.Errorf(authstate.KindRefreshRequired, "no refresh token available")
		}
		if !state.NeedsRefresh(s.margin) {
			// Refreshed by an earlier caller since the tokens were read.
			return nil, nil
		}
		if state.ServiceConfiguration == nil || state.ServiceConfiguration.TokenEndpoint == "" {
			return nil, authstate.Errorf(authstate.KindRefreshRequired, "no token endpoint configured")
		}
		return &refreshRequest{
			refreshToken: state.RefreshToken,
			clientID:     state.ClientID,
			authURL:      state.ServiceConfiguration.AuthorizationEndpoint,
			tokenURL:     state.ServiceConfiguration.TokenEndpoint,
			scope:        state.Scope,
		}, nil
	})
	if err != nil || req == nil {
		return err
	}

	token, err := worker.Submit(ctx, s.pool, "refresh token", func(ctx context.Context) (*oauth2.Token, error) {
		ctx, cancel := context.WithTimeout(s.httpContext(ctx), s.pool.Timeout())
		defer cancel()
		cfg := s.config(req.clientID, req.authURL, req.tokenURL, req.scope)
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: req.refreshToken}).Token()
	}).Await(ctx)

	return s.mutate(ctx, func(state *authstate.State) error {
		if err != nil {
			e := classifyRefresh(err)
			if e.Kind == authstate.KindRefreshRequired {
				s.fail(ctx, state, e)
			} else {
				logging.Warn(logging.SubsystemAuthFlow, "Token refresh failed (%s): %s", e.Kind, e.Error())
			}
			return e
		}
		if state.RefreshToken != req.refreshToken {
			return authstate.Errorf(authstate.KindAuthorization, "authorization changed while refreshing")
		}

		state.Update(tokenResponse(token), nil)
		s.emit(ctx, audit.EventTokenRefreshed, state, "")
		logging.Debug(logging.SubsystemAuthFlow, "Access token refreshed")
		return nil
	})
}

// classifyRefresh maps a rejected refresh token to RefreshRequired. Other
// failures keep their usual kind and are not latched, so a temporarily
// unreachable server does not end the session.
func classifyRefresh(err error) *authstate.Error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == oauth.ErrorCodeInvalidGrant {
		desc := retrieveErr.ErrorDescription
		if desc == "" {
			desc = "refresh token was rejected"
		}
		return &authstate.Error{Kind: authstate.KindRefreshRequired, Code: retrieveErr.ErrorCode, Description: desc, Err: err}
	}
	return authstate.Classify(err)
}
