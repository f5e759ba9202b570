package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
)

const (
	userConfigDir  = ".config/appauth"
	configFileName = "config.yaml"
	envFileName    = ".env"
)

// Default returns the configuration with only defaults applied.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Errorf("invalid config defaults: %w", err))
	}
	return cfg
}

// DefaultConfigDir returns ~/.config/appauth.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// ResolvePaths fills empty directory and file settings relative to dir.
func (c *Config) ResolvePaths(dir string) {
	if c.Storage.Dir == "" {
		c.Storage.Dir = dir
	}
	if c.Keys.Dir == "" {
		c.Keys.Dir = filepath.Join(dir, "keys")
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(dir, "snapshot.json")
	}
}
