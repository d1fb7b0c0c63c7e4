package config

import (
	"fmt"
	"sync/atomic"
)

// current holds the process-wide configuration. Commands load it once at
// startup; packages that are handed a *Config never read it.
var current atomic.Pointer[Config]

// Initialize loads configuration from path with environment variable
// overrides and stores it as the process-wide configuration.
func Initialize(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	current.Store(cfg)
	return nil
}

// GetConfig returns the process-wide configuration, or nil if Initialize
// has not succeeded yet.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the process-wide configuration. Intended for tests.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig reloads the configuration from path. The existing
// configuration is kept when loading or validation fails.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return nil
}

// MustGetConfig is GetConfig that panics when no configuration is loaded.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
