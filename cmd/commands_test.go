package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"appauth/internal/authstate"
	"appauth/internal/persistence"
	"appauth/internal/worker"
)

const testConfig = `
issuer: https://issuer.example.com
clientID: appauth-test
storage:
  backend: memory
keys:
  mode: wrapped
snapshot:
  backend: none
log:
  level: error
`

// executeRoot runs rootCmd against a temporary configuration directory.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config-dir", dir, "--quiet"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configDir, logLevel, quiet = "", "", false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand_Unauthorized(t *testing.T) {
	out, err := executeRoot(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, string(authstate.PhaseUnauthorized))
	assert.Contains(t, out, "Refresh token")
}

func TestCallCommand_NotLoggedIn(t *testing.T) {
	_, err := executeRoot(t, "call", "https://api.example.com/me")
	require.Error(t, err)

	var authErr *AuthRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestRefreshCommand_NotLoggedIn(t *testing.T) {
	_, err := executeRoot(t, "refresh")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestLogoutCommand_Local(t *testing.T) {
	_, err := executeRoot(t, "logout", "--local")
	require.NoError(t, err)
}

func TestRequireAuthorized(t *testing.T) {
	s := authstate.New()
	assert.Error(t, requireAuthorized(s))

	s.AccessToken = "at"
	assert.NoError(t, requireAuthorized(s))

	s.Update(nil, authstate.Errorf(authstate.KindRefreshRequired, "invalid_grant"))
	err := requireAuthorized(s)
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestRenderStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(5 * time.Minute)

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user@example.com",
		"exp":   expires.Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)

	s := &authstate.State{
		AccessToken:               "secret-access-token",
		RefreshToken:              "secret-refresh-token",
		IDToken:                   idToken,
		AccessTokenExpirationTime: &expires,
		Issuer:                    "https://issuer.example.com",
		ClientID:                  "cli",
		ServiceConfiguration: &authstate.ServiceConfiguration{
			TokenEndpoint: "https://issuer.example.com/token",
		},
	}

	t.Run("summary", func(t *testing.T) {
		var buf bytes.Buffer
		renderStatus(&buf, s, nil, false, now)
		out := buf.String()

		assert.Contains(t, out, string(authstate.PhaseAuthorized))
		assert.Contains(t, out, "https://issuer.example.com")
		assert.Contains(t, out, "in 5m0s")
		assert.Contains(t, out, "available")
		assert.NotContains(t, out, "secret-access-token")
		assert.NotContains(t, out, "secret-refresh-token")
		assert.NotContains(t, out, "user-42")
	})

	t.Run("full", func(t *testing.T) {
		var buf bytes.Buffer
		snap := &persistence.Snapshot{SavedAt: now, LastMessage: "token refreshed"}
		renderStatus(&buf, s, snap, true, now)
		out := buf.String()

		assert.Contains(t, out, "https://issuer.example.com/token")
		assert.Contains(t, out, "user-42")
		assert.Contains(t, out, "user@example.com")
		assert.Contains(t, out, "token refreshed")
		assert.NotContains(t, out, idToken)
	})
}

func TestPrintResult(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var buf bytes.Buffer
		err := printResult(&buf, worker.Result{StatusCode: http.StatusOK, JSON: map[string]interface{}{"sub": "user-42"}})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), `"sub": "user-42"`)
	})

	t.Run("unauthorized", func(t *testing.T) {
		err := printResult(&bytes.Buffer{}, worker.Result{StatusCode: http.StatusUnauthorized})
		assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
	})

	t.Run("server error", func(t *testing.T) {
		err := printResult(&bytes.Buffer{}, worker.Result{StatusCode: http.StatusInternalServerError})
		require.Error(t, err)
		assert.Equal(t, ExitCodeError, getExitCode(err))
	})
}

func TestFormatExpiry(t *testing.T) {
	now := time.Now()
	assert.Contains(t, formatExpiry(now.Add(90*time.Second), now), "in 1m30s")
	assert.Contains(t, formatExpiry(now.Add(-time.Minute), now), "1m0s ago")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
