package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "CHATRELAY_"

// LoadConfig loads configuration from a YAML or TOML file at the specified
// path. The format is chosen by extension (".toml" is TOML, anything else is
// YAML). ${VAR} references in the file are expanded from the environment.
// An empty path yields the defaults.
//
// It applies default values, validates the configuration, and returns any
// errors. Environment variable overrides are not applied; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Environment variables follow the naming
// convention CHATRELAY_SECTION_FIELD (e.g., CHATRELAY_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML/TOML from file (or start from defaults when path is empty)
// 2. Apply environment variable overrides
// 3. Apply default values
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string) (*Config, error) {
	cfg := newConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	content := expandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(content, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	return &cfg, nil
}

// expandEnv replaces ${VAR} and $VAR from the environment. ${secret:name}
// references are kept for the secrets manager.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if strings.HasPrefix(key, secretRefPrefix) {
			return "${" + key + "}"
		}
		return os.Getenv(key)
	})
}

const secretRefPrefix = "secret:"

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format CHATRELAY_SECTION_FIELD. Backend fields
// use CHATRELAY_BACKENDS_<NAME>_FIELD, where NAME is the upper-cased backend
// name with '-' replaced by '_'.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	envBool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	envBool("SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)

	// Relay overrides
	envString("RELAY_DEFAULT_BACKEND", &cfg.Relay.DefaultBackend)
	envDuration("RELAY_HEARTBEAT_INTERVAL", &cfg.Relay.HeartbeatInterval)
	envDuration("RELAY_CLIENT_WRITE_TIMEOUT", &cfg.Relay.ClientWriteTimeout)
	envString("RELAY_SYSTEM_PROMPT", &cfg.Relay.SystemPrompt)
	envString("RELAY_SYSTEM_PROMPT_FILE", &cfg.Relay.SystemPromptFile)

	// Backend overrides - a default backend that only exists in the
	// environment is created here so CHATRELAY_BACKENDS_OLLAMA_BASE_URL works
	// without a config file.
	if cfg.Backends == nil {
		cfg.Backends = make(map[string]BackendConfig)
	}
	defaultName := cfg.Relay.DefaultBackend
	if defaultName == "" {
		defaultName = DefaultBackendName
	}
	if _, ok := cfg.Backends[defaultName]; !ok {
		cfg.Backends[defaultName] = BackendConfig{}
	}
	for name := range cfg.Backends {
		applyBackendEnvOverrides(cfg, name)
	}

	// Sessions overrides
	envBool("SESSIONS_ENABLED", &cfg.Sessions.Enabled)
	envInt("SESSIONS_MAX_SESSIONS", &cfg.Sessions.MaxSessions)
	envInt("SESSIONS_MAX_TURNS", &cfg.Sessions.MaxTurns)
	envDuration("SESSIONS_IDLE_TTL", &cfg.Sessions.IdleTTL)

	// Ledger overrides
	envBool("LEDGER_ENABLED", &cfg.Ledger.Enabled)
	envString("LEDGER_DRIVER", &cfg.Ledger.Driver)
	envString("LEDGER_DSN", &cfg.Ledger.DSN)
	envInt("LEDGER_RETENTION_DAYS", &cfg.Ledger.RetentionDays)

	// Health overrides
	envBool("HEALTH_ENABLED", &cfg.Health.Enabled)
	envString("HEALTH_SCHEDULE", &cfg.Health.Schedule)

	// Secrets overrides
	envString("SECRETS_DIR", &cfg.Secrets.Dir)

	// Retrieval overrides
	envBool("RETRIEVAL_ENABLED", &cfg.Retrieval.Enabled)
	envString("RETRIEVAL_DIR", &cfg.Retrieval.Dir)
	envString("RETRIEVAL_DEFAULT_NAMESPACE", &cfg.Retrieval.DefaultNamespace)
	envInt("RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
}

// applyBackendEnvOverrides applies environment variable overrides for a
// specific backend.
func applyBackendEnvOverrides(cfg *Config, name string) {
	b := cfg.Backends[name]
	prefix := "BACKENDS_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"

	envString(prefix+"TYPE", &b.Type)
	envString(prefix+"BASE_URL", &b.BaseURL)
	envString(prefix+"API_KEY", &b.APIKey)
	envString(prefix+"MODEL", &b.Model)
	envInt(prefix+"NUM_CTX", &b.NumCtx)
	envInt(prefix+"NUM_PREDICT", &b.NumPredict)
	envDuration(prefix+"CONNECT_TIMEOUT", &b.ConnectTimeout)
	envDuration(prefix+"READ_TIMEOUT", &b.ReadTimeout)
	envDuration(prefix+"WRITE_TIMEOUT", &b.WriteTimeout)
	envDuration(prefix+"POOL_TIMEOUT", &b.PoolTimeout)
	envString(prefix+"KEEP_ALIVE", &b.KeepAlive)
	envInt(prefix+"RETRIES", &b.Retries)
	envDuration(prefix+"RETRY_BASE_DELAY", &b.RetryBaseDelay)

	cfg.Backends[name] = b
}

// Invalid values are ignored and leave the file/default value in place.

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
