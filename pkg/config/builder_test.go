package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a ConfigBuilder holding a valid default configuration.
func NewTestConfig() *ConfigBuilder {
	return &ConfigBuilder{cfg: *Default()}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithBackend adds or replaces a backend after applying backend defaults.
func (b *ConfigBuilder) WithBackend(name string, backend BackendConfig) *ConfigBuilder {
	applyBackendDefaults(&backend)
	b.cfg.Backends[name] = backend
	return b
}

// WithDefaultBackend sets relay.default_backend.
func (b *ConfigBuilder) WithDefaultBackend(name string) *ConfigBuilder {
	b.cfg.Relay.DefaultBackend = name
	return b
}

// WithHeartbeat sets relay.heartbeat_interval.
func (b *ConfigBuilder) WithHeartbeat(d time.Duration) *ConfigBuilder {
	b.cfg.Relay.HeartbeatInterval = d
	return b
}

// WithLedger enables the ledger with the given driver and DSN.
func (b *ConfigBuilder) WithLedger(driver, dsn string) *ConfigBuilder {
	b.cfg.Ledger.Enabled = true
	b.cfg.Ledger.Driver = driver
	b.cfg.Ledger.DSN = dsn
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}
