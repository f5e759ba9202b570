package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0600))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openid profile email offline_access", cfg.Scope)
	assert.Equal(t, 8085, cfg.CallbackPort)
	assert.Equal(t, 60*time.Second, cfg.RefreshMargin)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "appAuthPreference", cfg.Storage.Namespace)
	assert.Equal(t, "auto", cfg.Keys.Mode)
	assert.Equal(t, "aes-cbc-pkcs7", cfg.Encryption.Suite)
	assert.Equal(t, 10*time.Minute, cfg.Snapshot.TTL)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, Validate(&cfg))
}

func TestLoad_Missing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Storage.Dir)
	assert.Equal(t, filepath.Join(dir, "keys"), cfg.Keys.Dir)
	assert.Equal(t, filepath.Join(dir, "snapshot.json"), cfg.Snapshot.Path)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
issuer: https://accounts.example.com
clientID: cli
refreshMargin: 2m
storage:
  backend: sqlite
  dsn: "file:prefs.db"
encryption:
  suite: xchacha20poly1305
  readSuites: [aes-cbc-pkcs7]
log:
  level: debug
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.example.com", cfg.Issuer)
	assert.Equal(t, "cli", cfg.ClientID)
	assert.Equal(t, 2*time.Minute, cfg.RefreshMargin)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "xchacha20poly1305", cfg.Encryption.Suite)
	assert.Equal(t, []string{"aes-cbc-pkcs7"}, cfg.Encryption.ReadSuites)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 8085, cfg.CallbackPort)
	assert.Equal(t, "appAuthPreference", cfg.Storage.Namespace)
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "issuer: [unterminated")

	_, err := Load(dir)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "parse", ce.ErrorType)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{name: "issuer without client", yaml: "issuer: https://a.example.com", wantField: "clientID"},
		{name: "bad issuer", yaml: "issuer: not a url\nclientID: x", wantField: "issuer"},
		{name: "bad backend", yaml: "storage:\n  backend: s3", wantField: "storage.backend"},
		{name: "sqlite without dsn", yaml: "storage:\n  backend: sqlite", wantField: "storage.dsn"},
		{name: "redis without url", yaml: "snapshot:\n  backend: redis", wantField: "snapshot.redisURL"},
		{name: "bad suite", yaml: "encryption:\n  suite: rot13", wantField: "encryption.suite"},
		{name: "bad read suite", yaml: "encryption:\n  readSuites: [rot13]", wantField: "encryption.readSuites[0]"},
		{name: "bad port", yaml: "callbackPort: 70000", wantField: "callbackPort"},
		{name: "bad level", yaml: "log:\n  level: loud", wantField: "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.yaml)

			_, err := Load(dir)
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			var fields []string
			for _, ve := range verrs {
				fields = append(fields, ve.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APPAUTH_ISSUER", "https://env.example.com")
	t.Setenv("APPAUTH_CLIENT_ID", "env-client")
	t.Setenv("APPAUTH_CALLBACK_PORT", "9000")
	t.Setenv("APPAUTH_REFRESH_MARGIN", "30s")
	t.Setenv("APPAUTH_STORAGE_BACKEND", "memory")
	t.Setenv("APPAUTH_LOG_LEVEL", "warn")

	dir := t.TempDir()
	writeConfig(t, dir, "issuer: https://file.example.com\nclientID: file-client")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Issuer)
	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, 9000, cfg.CallbackPort)
	assert.Equal(t, 30*time.Second, cfg.RefreshMargin)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("APPAUTH_CALLBACK_PORT", "eighty")

	cfg := Default()
	err := ApplyEnv(&cfg)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "APPAUTH_CALLBACK_PORT", ce.FilePath)
}

func TestLoadEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APPAUTH_TEST_DOTENV=from-file\n"), 0600))
	t.Setenv(EnvSecretID, "")
	t.Setenv(EnvFilePath, "")
	t.Cleanup(func() { os.Unsetenv("APPAUTH_TEST_DOTENV") })

	require.NoError(t, LoadEnv(context.Background(), dir))
	assert.Equal(t, "from-file", os.Getenv("APPAUTH_TEST_DOTENV"))

	// Missing .env is fine.
	require.NoError(t, LoadEnv(context.Background(), t.TempDir()))
}

type fakeSecrets struct {
	output *secretsmanager.GetSecretValueOutput
	err    error
	input  *secretsmanager.GetSecretValueInput
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.input = in
	return f.output, f.err
}

func TestImportSecret(t *testing.T) {
	t.Setenv("APPAUTH_CLIENT_SECRET", "")
	os.Unsetenv("APPAUTH_CLIENT_SECRET")
	t.Setenv("APPAUTH_CLIENT_ID", "already-set")

	client := &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"APPAUTH_CLIENT_SECRET":"s3cr3t","APPAUTH_CLIENT_ID":"from-secret"}`),
	}}

	n, err := ImportSecret(context.Background(), client, "appauth/prod")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "s3cr3t", os.Getenv("APPAUTH_CLIENT_SECRET"))
	assert.Equal(t, "already-set", os.Getenv("APPAUTH_CLIENT_ID"))
	assert.Equal(t, "appauth/prod", aws.ToString(client.input.SecretId))
	assert.Equal(t, "AWSCURRENT", aws.ToString(client.input.VersionStage))
}

func TestImportSecret_Overwrite(t *testing.T) {
	t.Setenv(EnvSecretOverride, "true")
	t.Setenv("APPAUTH_CLIENT_ID", "already-set")

	client := &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{
		SecretBinary: []byte(`{"APPAUTH_CLIENT_ID":"from-secret"}`),
	}}

	_, err := ImportSecret(context.Background(), client, "appauth/prod")
	require.NoError(t, err)
	assert.Equal(t, "from-secret", os.Getenv("APPAUTH_CLIENT_ID"))
}

func TestImportSecret_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeSecrets
	}{
		{name: "fetch fails", client: &fakeSecrets{err: errors.New("access denied")}},
		{name: "empty", client: &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{}}},
		{name: "not json", client: &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("plain")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportSecret(context.Background(), tt.client, "id")
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "secret", ce.ErrorType)
		})
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.ClientSecret = "s3cr3t"
	cfg.Storage.DSN = "postgres://user:pw@db/app"
	cfg.Snapshot.RedisURL = "redis://:pw@cache:6379"

	s := cfg.String()
	assert.NotContains(t, s, "s3cr3t")
	assert.NotContains(t, s, "pw@")
	assert.Contains(t, s, "ClientSecret=***REDACTED***")
	assert.Contains(t, s, "Storage.Backend=file")
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := Default()
	cfg.Issuer = "https://accounts.example.com"
	cfg.ClientID = "cli"

	require.NoError(t, Save(dir, cfg))
	info, err := os.Stat(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Issuer, loaded.Issuer)
	assert.Equal(t, cfg.RefreshMargin, loaded.RefreshMargin)
}
