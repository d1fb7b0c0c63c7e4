package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"oqs-hq/chatrelay/pkg/providers"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRelay(cfg)...)
	errs = append(errs, validateBackends(cfg.Backends)...)
	errs = append(errs, validateSessions(&cfg.Sessions)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateRetrieval(&cfg.Retrieval)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
		switch cfg.TLS.MinVersion {
		case "1.2", "1.3":
		default:
			errs = append(errs, FieldError{
				Field:   "server.tls.min_version",
				Message: fmt.Sprintf("unsupported TLS version %q (supported: 1.2, 1.3)", cfg.TLS.MinVersion),
			})
		}
		if cfg.TLS.ReloadInterval < 0 {
			errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be non-negative"})
		}
	}

	if cfg.Auth.Enabled {
		if len(cfg.Auth.Keys) == 0 {
			errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
		}
		seen := make(map[string]bool)
		for i, k := range cfg.Auth.Keys {
			field := fmt.Sprintf("server.auth.keys[%d]", i)
			if k.Name == "" {
				errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
			} else if seen[k.Name] {
				errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate key name %q", k.Name)})
			}
			seen[k.Name] = true
			if k.Key == "" {
				errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
			}
		}
	}

	return errs
}

// validateRelay validates relay settings and the default backend reference.
func validateRelay(cfg *Config) []FieldError {
	var errs []FieldError

	if _, ok := cfg.Backends[cfg.Relay.DefaultBackend]; !ok {
		errs = append(errs, FieldError{
			Field:   "relay.default_backend",
			Message: fmt.Sprintf("default backend %q is not configured", cfg.Relay.DefaultBackend),
		})
	}
	if cfg.Relay.HeartbeatInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "relay.heartbeat_interval",
			Message: "heartbeat interval must be positive",
		})
	}
	if cfg.Relay.ClientWriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "relay.client_write_timeout",
			Message: "client write timeout must be non-negative",
		})
	}

	return errs
}

// validateBackends validates every backend entry.
func validateBackends(backends map[string]BackendConfig) []FieldError {
	var errs []FieldError

	if len(backends) == 0 {
		errs = append(errs, FieldError{Field: "backends", Message: "at least one backend must be configured"})
		return errs
	}

	for name, b := range backends {
		prefix := fmt.Sprintf("backends.%s", name)

		switch b.Type {
		case "", providers.TypeOllama, providers.TypeOpenAI, providers.TypeEcho:
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unsupported backend type %q (supported: ollama, openai, echo)", b.Type),
			})
		}

		if b.BaseURL != "" {
			if err := providers.ValidateBaseURL(providers.NormalizeBaseURL(b.BaseURL)); err != nil {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid base URL: %v", err),
				})
			}
		}

		if strings.TrimSpace(b.Model) == "" {
			errs = append(errs, FieldError{Field: prefix + ".model", Message: "model is required"})
		}
		if b.NumCtx < 0 {
			errs = append(errs, FieldError{Field: prefix + ".num_ctx", Message: "num_ctx must be non-negative"})
		}
		if b.NumPredict < 0 {
			errs = append(errs, FieldError{Field: prefix + ".num_predict", Message: "num_predict must be non-negative"})
		}
		if b.Retries < 0 || b.Retries > 10 {
			errs = append(errs, FieldError{Field: prefix + ".retries", Message: "retries must be between 0 and 10"})
		}
		if b.ConnectTimeout < 0 || b.ReadTimeout < 0 || b.WriteTimeout < 0 || b.PoolTimeout < 0 {
			errs = append(errs, FieldError{Field: prefix, Message: "timeouts must be non-negative"})
		}
		if b.RetryBaseDelay < 0 {
			errs = append(errs, FieldError{Field: prefix + ".retry_base_delay", Message: "retry base delay must be non-negative"})
		}
	}

	return errs
}

func validateSessions(cfg *SessionsConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.MaxSessions <= 0 {
		errs = append(errs, FieldError{Field: "sessions.max_sessions", Message: "max sessions must be positive"})
	}
	if cfg.MaxTurns <= 0 {
		errs = append(errs, FieldError{Field: "sessions.max_turns", Message: "max turns must be positive"})
	}
	if cfg.IdleTTL < 0 {
		errs = append(errs, FieldError{Field: "sessions.idle_ttl", Message: "idle TTL must be non-negative"})
	}
	errs = append(errs, validateSchedule("sessions.sweep_schedule", cfg.SweepSchedule)...)
	return errs
}

func validateLedger(cfg *LedgerConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	switch cfg.Driver {
	case "sqlite", "sqlite3", "pgx":
	default:
		errs = append(errs, FieldError{
			Field:   "ledger.driver",
			Message: fmt.Sprintf("unsupported driver %q (supported: sqlite, sqlite3, pgx)", cfg.Driver),
		})
	}
	if cfg.DSN == "" {
		errs = append(errs, FieldError{Field: "ledger.dsn", Message: "dsn is required"})
	}
	if cfg.QueueSize <= 0 {
		errs = append(errs, FieldError{Field: "ledger.queue_size", Message: "queue size must be positive"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "ledger.retention_days", Message: "retention days must be non-negative"})
	}
	errs = append(errs, validateSchedule("ledger.retention_schedule", cfg.RetentionSchedule)...)
	return errs
}

func validateHealth(cfg *HealthConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.CheckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "health.check_timeout", Message: "check timeout must be positive"})
	}
	errs = append(errs, validateSchedule("health.schedule", cfg.Schedule)...)
	return errs
}

func validateSecrets(cfg *SecretsConfig) []FieldError {
	var errs []FieldError
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "cache TTL must be non-negative"})
	}
	if cfg.CacheSize < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_size", Message: "cache size must be non-negative"})
	}
	if cfg.Watch && cfg.Dir == "" {
		errs = append(errs, FieldError{Field: "secrets.watch", Message: "watch requires secrets.dir"})
	}
	return errs
}

func validateRetrieval(cfg *RetrievalConfig) []FieldError {
	var errs []FieldError
	if cfg.Enabled && cfg.Dir == "" {
		errs = append(errs, FieldError{Field: "retrieval.dir", Message: "document directory is required when retrieval is enabled"})
	}
	if cfg.DefaultNamespace != "" && !ValidNamespace(cfg.DefaultNamespace) {
		errs = append(errs, FieldError{
			Field:   "retrieval.default_namespace",
			Message: fmt.Sprintf("invalid namespace %q (letters, digits, '-', '_' and '.' only)", cfg.DefaultNamespace),
		})
	}
	if cfg.TopK < 0 {
		errs = append(errs, FieldError{Field: "retrieval.top_k", Message: "top_k must be non-negative"})
	}
	if cfg.MaxPassageChars < 0 {
		errs = append(errs, FieldError{Field: "retrieval.max_passage_chars", Message: "max passage chars must be non-negative"})
	}
	return errs
}

// ValidNamespace reports whether name can be used as a retrieval namespace:
// a single directory name made of letters, digits, '-', '_' and '.', and
// neither "." nor "..".
func ValidNamespace(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 128 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Tracing.Endpoint); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: fmt.Sprintf("invalid collector endpoint: %v", err),
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (valid: always, never, ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	for i := 1; i < len(cfg.Metrics.DurationBuckets); i++ {
		if cfg.Metrics.DurationBuckets[i] <= cfg.Metrics.DurationBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.duration_buckets",
				Message: "buckets must be sorted in increasing order",
			})
			break
		}
	}

	return errs
}

// validateSchedule checks a standard 5-field cron expression or descriptor.
func validateSchedule(field, spec string) []FieldError {
	if _, err := cron.ParseStandard(spec); err != nil {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid cron schedule %q: %v", spec, err)}}
	}
	return nil
}
