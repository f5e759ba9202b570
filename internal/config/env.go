package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"appauth/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "APPAUTH_"

// Environment variables controlling the AWS Secrets Manager import.
const (
	EnvSecretID       = EnvPrefix + "AWS_SECRET_ID"
	EnvSecretRegion   = EnvPrefix + "AWS_SECRET_REGION"
	EnvSecretVersion  = EnvPrefix + "AWS_SECRET_VERSION_STAGE"
	EnvSecretOverride = EnvPrefix + "AWS_SECRET_OVERWRITE"
	EnvFilePath       = EnvPrefix + "ENV_FILE"
)

// SecretsClient is the part of the Secrets Manager API used here.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv populates the process environment from AWS Secrets Manager (when
// APPAUTH_AWS_SECRET_ID is set) and then from a .env file: APPAUTH_ENV_FILE
// if set, otherwise dir/.env. Variables already set are not overwritten.
func LoadEnv(ctx context.Context, dir string) error {
	if secretID := os.Getenv(EnvSecretID); secretID != "" {
		cfg, err := loadAWSConfig(ctx, os.Getenv(EnvSecretRegion))
		if err != nil {
			return NewConfigurationError("", "secret", "failed to load AWS configuration", err)
		}
		if _, err := ImportSecret(ctx, secretsmanager.NewFromConfig(cfg), secretID); err != nil {
			return err
		}
	}

	envFile := os.Getenv(EnvFilePath)
	if envFile == "" {
		envFile = dir + string(os.PathSeparator) + envFileName
	}
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			return NewConfigurationError(envFile, "env", "failed to load .env file", err)
		}
		logging.Debug(logging.SubsystemConfig, "No .env file at %s", envFile)
	}
	return nil
}

// ImportSecret copies the keys of a JSON object secret into the
// environment and returns how many were set.
func ImportSecret(ctx context.Context, client SecretsClient, secretID string) (int, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)}
	stage := os.Getenv(EnvSecretVersion)
	if stage == "" {
		stage = "AWSCURRENT"
	}
	input.VersionStage = aws.String(stage)
	overwrite := strings.EqualFold(os.Getenv(EnvSecretOverride), "true")

	output, err := client.GetSecretValue(ctx, input)
	if err != nil {
		return 0, NewConfigurationError(secretID, "secret", "failed to fetch secret", err)
	}

	var payload string
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return 0, NewConfigurationError(secretID, "secret", "secret has no payload", nil)
	}

	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, NewConfigurationError(secretID, "secret", "secret is not a JSON object", err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}

	logging.Info(logging.SubsystemConfig, "Loaded %d environment variables from secret %s", applied, secretID)
	return applied, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}

// ApplyEnv overrides fields of cfg that carry an `env` tag with the value of
// APPAUTH_<tag>, when set.
func ApplyEnv(cfg *Config) error {
	return applyEnv(reflect.ValueOf(cfg).Elem())
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := applyEnv(fv); err != nil {
				return err
			}
			continue
		}

		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}
		name := EnvPrefix + tag
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return NewConfigurationError(name, "env", fmt.Sprintf("invalid value %q", raw), err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.Kind() == reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(n))
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// String renders cfg with secret fields redacted.
func (c Config) String() string {
	var sb strings.Builder
	writeRedacted(&sb, "", reflect.ValueOf(c))
	return strings.TrimSuffix(sb.String(), " ")
}

func writeRedacted(sb *strings.Builder, prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		name := prefix + field.Name
		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			writeRedacted(sb, name+".", fv)
			continue
		}
		value := fmt.Sprint(fv.Interface())
		if field.Tag.Get("secret") == "true" && value != "" {
			value = "***REDACTED***"
		}
		fmt.Fprintf(sb, "%s=%s ", name, value)
	}
}
