package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"appauth/pkg/logging"
)

// Load reads config.yaml from dir on top of the defaults, applies APPAUTH_*
// environment overrides, resolves relative paths and validates the result.
// A missing config.yaml is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, configFileName)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug(logging.SubsystemConfig, "No config.yaml found at %s, using defaults", path)
	case err != nil:
		return Config{}, NewConfigurationError(path, "io", "failed to read configuration file", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, NewConfigurationError(path, "parse", "failed to parse configuration file", err)
		}
		logging.Debug(logging.SubsystemConfig, "Loaded configuration from %s", path)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.ResolvePaths(dir)

	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml with 0600 permissions. Secrets are
// written too; callers that must not persist them should clear them first.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return NewConfigurationError(path, "io", "failed to write configuration file", err)
	}
	return nil
}
