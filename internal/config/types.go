package config

import (
	"time"
)

// Config is the top-level appauth configuration.
type Config struct {
	// Issuer is the authorization server's issuer URL. Required for login.
	Issuer       string `yaml:"issuer" env:"ISSUER" validate:"omitempty,url"`
	ClientID     string `yaml:"clientID" env:"CLIENT_ID" validate:"required_with=Issuer"`
	ClientSecret string `yaml:"clientSecret,omitempty" env:"CLIENT_SECRET" secret:"true"`
	Scope        string `yaml:"scope" env:"SCOPE" default:"openid profile email offline_access"`

	// CallbackPort is the loopback port of the redirect URI. 0 picks a
	// free port, which only works with issuers that accept any loopback
	// port (RFC 8252 section 7.3).
	CallbackPort int `yaml:"callbackPort" env:"CALLBACK_PORT" default:"8085" validate:"gte=0,lte=65535"`

	// APIEndpoint is the resource `appauth call` requests when no URL is
	// given. Empty means the issuer's userinfo endpoint.
	APIEndpoint string `yaml:"apiEndpoint,omitempty" env:"API_ENDPOINT" validate:"omitempty,url"`

	RefreshMargin time.Duration `yaml:"refreshMargin" env:"REFRESH_MARGIN" default:"60s" validate:"gte=0"`
	HTTPTimeout   time.Duration `yaml:"httpTimeout" env:"HTTP_TIMEOUT" default:"5s" validate:"gt=0"`
	Workers       int           `yaml:"workers" env:"WORKERS" default:"2" validate:"gte=1,lte=16"`

	Storage    StorageConfig    `yaml:"storage"`
	Keys       KeysConfig       `yaml:"keys"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Audit      AuditConfig      `yaml:"audit"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig selects where preferences (the encrypted state and the
// wrapped key) are kept.
type StorageConfig struct {
	Backend   string `yaml:"backend" env:"STORAGE_BACKEND" default:"file" validate:"oneof=file sqlite postgres memory"`
	Dir       string `yaml:"dir,omitempty" env:"STORAGE_DIR"`
	DSN       string `yaml:"dsn,omitempty" env:"STORAGE_DSN" secret:"true" validate:"required_if=Backend sqlite,required_if=Backend postgres"`
	Namespace string `yaml:"namespace" env:"STORAGE_NAMESPACE" default:"appAuthPreference" validate:"required"`
}

// KeysConfig selects the key store backend.
type KeysConfig struct {
	Mode       string `yaml:"mode" env:"KEY_MODE" default:"auto" validate:"oneof=auto keyring wrapped"`
	Service    string `yaml:"service" env:"KEY_SERVICE" default:"appauth" validate:"required"`
	Dir        string `yaml:"dir,omitempty" env:"KEY_DIR"`
	CommonName string `yaml:"commonName" env:"KEY_COMMON_NAME" default:"appauth" validate:"required"`
}

// EncryptionConfig selects the envelope cipher suite.
type EncryptionConfig struct {
	Suite string `yaml:"suite" env:"ENCRYPTION_SUITE" default:"aes-cbc-pkcs7" validate:"oneof=aes-cbc-pkcs7 xchacha20poly1305"`

	// ReadSuites are also tried when loading, so that state written with
	// a previous suite can still be read after switching.
	ReadSuites []string `yaml:"readSuites,omitempty" validate:"dive,oneof=aes-cbc-pkcs7 xchacha20poly1305"`
}

// SnapshotConfig configures the short lived status snapshot.
type SnapshotConfig struct {
	Backend  string        `yaml:"backend" env:"SNAPSHOT_BACKEND" default:"file" validate:"oneof=file redis none"`
	Path     string        `yaml:"path,omitempty" env:"SNAPSHOT_PATH"`
	RedisURL string        `yaml:"redisURL,omitempty" env:"REDIS_URL" secret:"true" validate:"required_if=Backend redis"`
	TTL      time.Duration `yaml:"ttl" env:"SNAPSHOT_TTL" default:"10m" validate:"gt=0"`
}

// AuditConfig configures where audit events go besides the log.
type AuditConfig struct {
	AMQPURL  string `yaml:"amqpURL,omitempty" env:"AMQP_URL" secret:"true"`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" default:"appauth.audit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}
