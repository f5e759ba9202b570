package authflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"appauth/internal/audit"
	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// AuthorizationParams identifies the client and issuer to authorize against.
type AuthorizationParams struct {
	Issuer      string
	ClientID    string
	RedirectURI string
	Scope       string
}

// AuthorizationRequest describes the request the user must complete in a
// browser.
type AuthorizationRequest struct {
	URL         string
	State       string
	RedirectURI string
	Issuer      string
}

// StartAuthorization discovers the issuer's endpoints and records a new
// pending request with fresh PKCE verifier and state. Any earlier pending
// request is replaced.
//
// When discovery fails the error has kind DiscoveryError and no request is
// left pending.
func (s *Service) StartAuthorization(ctx context.Context, params AuthorizationParams) (*AuthorizationRequest, error) {
	if params.Issuer == "" || params.ClientID == "" || params.RedirectURI == "" {
		return nil, authstate.Errorf(authstate.KindAuthorization, "issuer, client ID and redirect URI are required")
	}

	metadata, err := worker.Submit(ctx, s.pool, "discover "+params.Issuer, func(ctx context.Context) (*oauth.Metadata, error) {
		return s.oauth.DiscoverMetadata(ctx, params.Issuer)
	}).Await(ctx)
	if err != nil {
		derr := authstate.NewError(authstate.KindDiscovery, "failed to discover authorization server metadata", err)
		_ = s.mutate(ctx, func(state *authstate.State) error {
			state.ClearPending()
			return nil
		})
		logging.Warn(logging.SubsystemAuthFlow, "Discovery for %s failed: %v", params.Issuer, err)
		return nil, derr
	}
	if !metadata.SupportsPKCE() {
		logging.Warn(logging.SubsystemAuthFlow, "Issuer %s does not advertise S256 PKCE support, sending it anyway", params.Issuer)
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE: %w", err)
	}
	stateParam, err := oauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := s.oauth.BuildAuthorizationURL(metadata.AuthorizationEndpoint, params.ClientID, params.RedirectURI, stateParam, params.Scope, pkce)
	if err != nil {
		return nil, authstate.NewError(authstate.KindDiscovery, "issuer advertised an invalid authorization endpoint", err)
	}

	err = s.mutate(ctx, func(state *authstate.State) error {
		if state.Issuer != params.Issuer || state.ClientID != params.ClientID {
			state.Reset()
		}
		state.Issuer = params.Issuer
		state.ClientID = params.ClientID
		state.Scope = params.Scope
		state.ServiceConfiguration = &authstate.ServiceConfiguration{
			AuthorizationEndpoint: metadata.AuthorizationEndpoint,
			TokenEndpoint:         metadata.TokenEndpoint,
			RevocationEndpoint:    metadata.RevocationEndpoint,
			UserinfoEndpoint:      metadata.UserinfoEndpoint,
		}
		state.SetPending(&authstate.PendingAuthorizationRequest{
			CodeVerifier: pkce.CodeVerifier,
			State:        stateParam,
			RedirectURI:  params.RedirectURI,
			Scope:        params.Scope,
			CreatedAt:    time.Now(),
		})
		s.emit(ctx, audit.EventAuthorizationStarted, state, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(logging.SubsystemAuthFlow, "Authorization request created for %s", params.Issuer)
	return &AuthorizationRequest{
		URL:         authURL,
		State:       stateParam,
		RedirectURI: params.RedirectURI,
		Issuer:      params.Issuer,
	}, nil
}

// exchange is everything the code exchange needs, copied off the state.
type exchange struct {
	code        string
	verifier    string
	redirectURI string
	clientID    string
	scope       string
	tokenURL    string
	authURL     string
}

// HandleAuthorizationCallback processes the query parameters the
// authorization server redirected the browser with.
//
// The pending request is consumed. An error parameter, a state that does
// not match the pending request or a missing code is an AuthorizationError
// and no token request is made. The error is latched only when it answers a
// pending request and no authorized grant is held; a stray or replayed
// redirect never ends a working session. Otherwise the code is exchanged
// for tokens at the token endpoint.
func (s *Service) HandleAuthorizationCallback(ctx context.Context, params url.Values) error {
	ex, err := onOwnerErr(ctx, s, func(state *authstate.State) (*exchange, error) {
		defer s.notify(ctx, state)
		hadPending := state.PendingAuthorizationRequest != nil
		ex, cerr := s.checkCallback(state, params)
		if cerr != nil {
			if hadPending && !state.IsAuthorized() {
				s.fail(ctx, state, cerr)
			} else {
				s.reject(ctx, state, cerr)
			}
			return nil, cerr
		}
		state.Update(&authstate.AuthorizationResponse{Code: ex.code, State: params.Get("state")}, nil)
		return ex, nil
	})
	if err != nil {
		return err
	}

	token, err := worker.Submit(ctx, s.pool, "exchange code", func(ctx context.Context) (*oauth2.Token, error) {
		cfg := s.config(ex.clientID, ex.authURL, ex.tokenURL, ex.scope)
		cfg.RedirectURL = ex.redirectURI
		ctx, cancel := context.WithTimeout(s.httpContext(ctx), s.pool.Timeout())
		defer cancel()
		return cfg.Exchange(ctx, ex.code, oauth2.VerifierOption(ex.verifier))
	}).Await(ctx)

	return s.mutate(ctx, func(state *authstate.State) error {
		if err != nil {
			e := authstate.Classify(err)
			if e.Kind == authstate.KindUnexpectedHTTPStatus || e.Kind == authstate.KindAuthorization {
				e = &authstate.Error{Kind: authstate.KindTokenExchange, Code: e.Code, Description: "token endpoint rejected the authorization code", Err: err}
			}
			s.fail(ctx, state, e)
			return e
		}

		state.Update(tokenResponse(token), nil)
		s.emit(ctx, audit.EventAuthorized, state, "")
		logging.Info(logging.SubsystemAuthFlow, "Authorization code exchanged for tokens")
		return nil
	})
}

func (s *Service) checkCallback(state *authstate.State, params url.Values) (*exchange, *authstate.Error) {
	pending := state.PendingAuthorizationRequest
	state.ClearPending()

	if pending == nil {
		return nil, authstate.Errorf(authstate.KindAuthorization, "no authorization request in progress")
	}
	if code := params.Get("error"); code != "" {
		desc := params.Get("error_description")
		if desc == "" {
			desc = "authorization server returned an error"
		}
		return nil, authstate.Errorf(authstate.KindAuthorization, "%s", desc).WithCode(code)
	}
	if params.Get("state") != pending.State {
		logging.Warn(logging.SubsystemAuthFlow, "Authorization state mismatch, possible CSRF (expected %d chars, got %d)", len(pending.State), len(params.Get("state")))
		return nil, authstate.Errorf(authstate.KindAuthorization, "state parameter does not match the pending request")
	}
	code := params.Get("code")
	if code == "" {
		return nil, authstate.Errorf(authstate.KindAuthorization, "authorization response carries no code")
	}
	if state.ServiceConfiguration == nil || state.ServiceConfiguration.TokenEndpoint == "" {
		return nil, authstate.Errorf(authstate.KindAuthorization, "no token endpoint configured")
	}

	return &exchange{
		code:        code,
		verifier:    pending.CodeVerifier,
		redirectURI: pending.RedirectURI,
		clientID:    state.ClientID,
		scope:       pending.Scope,
		tokenURL:    state.ServiceConfiguration.TokenEndpoint,
		authURL:     state.ServiceConfiguration.AuthorizationEndpoint,
	}, nil
}

// fail records err on the state and emits the matching audit event.
func (s *Service) fail(ctx context.Context, state *authstate.State, err error) {
	e := state.Update(nil, err)
	switch {
	case e.Kind == authstate.KindRefreshRequired:
		s.emit(ctx, audit.EventReauthorizationRequired, state, e.Error())
	case e.Kind.Latched():
		s.emit(ctx, audit.EventAuthorizationFailed, state, e.Error())
	}
	logging.Warn(logging.SubsystemAuthFlow, "Authorization flow step failed (%s): %s", e.Kind, e.Error())
}

// reject reports a callback error without recording it on the state.
func (s *Service) reject(ctx context.Context, state *authstate.State, e *authstate.Error) {
	s.emit(ctx, audit.EventAuthorizationFailed, state, e.Error())
	logging.Warn(logging.SubsystemAuthFlow, "Ignoring authorization callback (%s): %s", e.Kind, e.Error())
}

func (s *Service) config(clientID, authURL, tokenURL, scope string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: s.clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if scope != "" {
		cfg.Scopes = strings.Fields(scope)
	}
	return cfg
}

// httpContext makes x/oauth2 use the pool's HTTP client.
func (s *Service) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.pool.HTTPClient())
}

func tokenResponse(t *oauth2.Token) *authstate.TokenResponse {
	resp := &authstate.TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.Type(),
		Expiry:       t.Expiry,
	}
	if id, ok := t.Extra("id_token").(string); ok {
		resp.IDToken = id
	}
	if scope, ok := t.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}

// onOwnerErr is onOwner for functions returning a value and an error.
func onOwnerErr[T any](ctx context.Context, s *Service, fn func(*authstate.State) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	r, err := onOwner(ctx, s, func(state *authstate.State) result {
		v, ferr := fn(state)
		return result{val: v, err: ferr}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return r.val, r.err
}
