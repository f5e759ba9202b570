package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"appauth/internal/audit"
	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/oauth"
)

const testClientID = "appauth-test"

// fakeIssuer is an authorization and resource server in one.
type fakeIssuer struct {
	srv *httptest.Server

	mu             sync.Mutex
	tokenRequests  []url.Values
	revokeRequests []url.Values
	apiAuth        []string

	refreshes atomic.Int32

	noRevocation  bool
	refreshStatus int
	refreshBody   string
	revokeStatus  int
	revokeBody    string
	apiStatus     int
	apiChallenge  string
	refreshDelay  time.Duration
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	fi := &fakeIssuer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", fi.handleDiscovery)
	mux.HandleFunc("/token", fi.handleToken)
	mux.HandleFunc("/revoke", fi.handleRevoke)
	mux.HandleFunc("/api", fi.handleAPI)
	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

func (fi *fakeIssuer) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	m := oauth.Metadata{
		Issuer:                        fi.srv.URL,
		AuthorizationEndpoint:         fi.srv.URL + "/authorize",
		TokenEndpoint:                 fi.srv.URL + "/token",
		ResponseTypesSupported:        []string{"code"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	if !fi.noRevocation {
		m.RevocationEndpoint = fi.srv.URL + "/revoke"
	}
	writeJSON(w, http.StatusOK, m)
}

func (fi *fakeIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fi.mu.Lock()
	fi.tokenRequests = append(fi.tokenRequests, r.PostForm)
	fi.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "unknown code"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"id_token":      "id-1",
		})
	case "refresh_token":
		n := fi.refreshes.Add(1)
		if fi.refreshDelay > 0 {
			time.Sleep(fi.refreshDelay)
		}
		if fi.refreshStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fi.refreshStatus)
			_, _ = w.Write([]byte(fi.refreshBody))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": fmt.Sprintf("access-refreshed-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (fi *fakeIssuer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fi.mu.Lock()
	fi.revokeRequests = append(fi.revokeRequests, r.PostForm)
	fi.mu.Unlock()

	status := fi.revokeStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fi.revokeBody))
}

func (fi *fakeIssuer) handleAPI(w http.ResponseWriter, r *http.Request) {
	fi.mu.Lock()
	fi.apiAuth = append(fi.apiAuth, r.Header.Get("Authorization"))
	fi.mu.Unlock()

	if fi.apiStatus == http.StatusUnauthorized {
		if fi.apiChallenge != "" {
			w.Header().Set("WWW-Authenticate", fi.apiChallenge)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if fi.apiStatus != 0 {
		w.WriteHeader(fi.apiStatus)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sub": "user-1", "name": "Test User"})
}

func (fi *fakeIssuer) tokenRequestCount() int {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return len(fi.tokenRequests)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stateLog records every state the observer sees.
type stateLog struct {
	mu     sync.Mutex
	states []*authstate.State
}

func (l *stateLog) observe(_ context.Context, s *authstate.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

// eventLog is an audit.Sink that keeps events.
type eventLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *eventLog) Emit(_ context.Context, ev audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []audit.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []audit.EventType
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	svc    *Service
	issuer *fakeIssuer
	states *stateLog
	events *eventLog
}

func newHarness(t *testing.T, initial *authstate.State) *harness {
	t.Helper()
	fi := newFakeIssuer(t)
	return newHarnessFor(t, fi, initial)
}

func newHarnessFor(t *testing.T, fi *fakeIssuer, initial *authstate.State) *harness {
	t.Helper()
	pool := worker.NewPool(worker.WithHTTPClient(fi.srv.Client()))
	t.Cleanup(pool.Close)

	h := &harness{issuer: fi, states: &stateLog{}, events: &eventLog{}}
	h.svc = NewService(initial,
		WithPool(pool),
		WithOAuthClient(oauth.NewClient(oauth.WithHTTPClient(fi.srv.Client()))),
		WithObserver(h.states.observe),
		WithAuditSink(h.events),
	)
	t.Cleanup(h.svc.Close)
	return h
}

// authorizedState returns a state holding tokens issued by fi.
func authorizedState(fi *fakeIssuer, expiresIn time.Duration) *authstate.State {
	s := authstate.New()
	s.Issuer = fi.srv.URL
	s.ClientID = testClientID
	s.ServiceConfiguration = &authstate.ServiceConfiguration{
		AuthorizationEndpoint: fi.srv.URL + "/authorize",
		TokenEndpoint:         fi.srv.URL + "/token",
		RevocationEndpoint:    fi.srv.URL + "/revoke",
	}
	s.Update(&authstate.TokenResponse{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(expiresIn),
	}, nil)
	return s
}

func (h *harness) state(t *testing.T) *authstate.State {
	t.Helper()
	s, err := h.svc.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return s
}
