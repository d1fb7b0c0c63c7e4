package config

import "time"

// Config is the root configuration structure for chatrelay.
// It contains the HTTP server, the relay core, the configured backends and
// the optional session, ledger and telemetry layers.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and CORS.
	Server ServerConfig `yaml:"server" toml:"server"`

	// Relay contains the streaming relay settings shared by every backend.
	Relay RelayConfig `yaml:"relay" toml:"relay"`

	// Backends contains one entry per language-model backend.
	// Keys are backend names (e.g., "ollama", "hosted").
	Backends map[string]BackendConfig `yaml:"backends" toml:"backends"`

	// Sessions contains bounded conversation history settings.
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions"`

	// Ledger contains the outcome ledger settings.
	Ledger LedgerConfig `yaml:"ledger" toml:"ledger"`

	// Health contains backend health probing settings.
	Health HealthConfig `yaml:"health" toml:"health"`

	// Secrets configures resolution of ${secret:name} references in backend
	// API keys, backend headers and gateway API keys.
	Secrets SecretsConfig `yaml:"secrets" toml:"secrets"`

	// Retrieval adds passages from a local document directory to chat
	// requests as a context system message.
	Retrieval RetrievalConfig `yaml:"retrieval" toml:"retrieval"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig contains configuration for the inbound HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address" toml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds whole responses. Streams can run for minutes, so
	// the default is 0 (none); streamed writes are bounded per unit by
	// relay.client_write_timeout instead.
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" toml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors" toml:"cors"`

	// API describes the service in /config responses.
	API APIConfig `yaml:"api" toml:"api"`

	// TLS serves the gateway over HTTPS.
	TLS TLSConfig `yaml:"tls" toml:"tls"`

	// Auth requires an API key on the chat endpoints.
	Auth AuthConfig `yaml:"auth" toml:"auth"`
}

// TLSConfig contains HTTPS settings for the inbound server.
type TLSConfig struct {
	// Enabled turns on HTTPS.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file" toml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file" toml:"key_file"`

	// MinVersion is the lowest accepted protocol version: "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version" toml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes. 0 disables reloading.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval" toml:"reload_interval"`
}

// AuthConfig contains API key authentication settings.
type AuthConfig struct {
	// Enabled requires a valid key on the chat, models and config endpoints.
	// Health, readiness, version and metrics endpoints stay open.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Header is the request header carrying the key. "Authorization"
	// values may use the Bearer scheme.
	// Default: "Authorization"
	Header string `yaml:"header" toml:"header"`

	// Keys are the accepted keys.
	Keys []APIKeyConfig `yaml:"keys" toml:"keys"`
}

// APIKeyConfig is one accepted client key.
type APIKeyConfig struct {
	// Name identifies the client in logs and the ledger.
	Name string `yaml:"name" toml:"name"`

	// Key is the secret value, typically a ${secret:name} reference.
	Key string `yaml:"key" toml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled" toml:"disabled"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// AllowedOrigins is a list of allowed origins.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods" toml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID", "X-Session-ID"]
	AllowedHeaders []string `yaml:"allowed_headers" toml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age" toml:"max_age"`
}

// APIConfig holds descriptive metadata reported by /config.
type APIConfig struct {
	// Title defaults to "chatrelay".
	Title string `yaml:"title" toml:"title"`

	// Version defaults to the build version.
	Version string `yaml:"version" toml:"version"`
}

// RelayConfig contains settings of the streaming relay core.
type RelayConfig struct {
	// DefaultBackend names the backend used when a request does not pick one.
	// Default: "ollama"
	DefaultBackend string `yaml:"default_backend" toml:"default_backend"`

	// HeartbeatInterval is the idle time after which a heartbeat is sent.
	// Default: 2s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"`

	// ClientWriteTimeout bounds every individual write of a streamed unit.
	// Default: 10s
	ClientWriteTimeout time.Duration `yaml:"client_write_timeout" toml:"client_write_timeout"`

	// SystemPrompt is the process-wide system prompt.
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`

	// SystemPromptFile is a file whose content replaces SystemPrompt.
	// The file is watched and reloaded on change.
	SystemPromptFile string `yaml:"system_prompt_file" toml:"system_prompt_file"`
}

// BackendConfig contains configuration for a single backend.
type BackendConfig struct {
	// Type selects the adapter: "ollama", "openai" or "echo".
	// Inferred from the backend name when empty.
	Type string `yaml:"type" toml:"type"`

	// BaseURL is the backend address. An empty value serves the backend with
	// the local echo adapter.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// APIKey is sent as a bearer token to OpenAI-compatible backends.
	// This should typically be loaded from an environment variable.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// Model is the default model.
	// Default: "llama3.2:1b"
	Model string `yaml:"model" toml:"model"`

	// NumCtx is the context window size.
	// Default: 1024
	NumCtx int `yaml:"num_ctx" toml:"num_ctx"`

	// NumPredict is the default output token budget.
	// Default: 128
	NumPredict int `yaml:"num_predict" toml:"num_predict"`

	// ConnectTimeout bounds connection establishment.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`

	// ReadTimeout bounds each individual upstream read.
	// Default: 120s
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds each individual upstream write.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// PoolTimeout bounds the time spent obtaining a connection.
	// Default: 5s
	PoolTimeout time.Duration `yaml:"pool_timeout" toml:"pool_timeout"`

	// KeepAlive is passed to Ollama to keep the model loaded.
	// Default: "30m"
	KeepAlive string `yaml:"keep_alive" toml:"keep_alive"`

	// Retries is the number of additional attempts for retryable failures.
	// Default: 0
	Retries int `yaml:"retries" toml:"retries"`

	// RetryBaseDelay is the first backoff delay; later delays double.
	// Default: 500ms
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" toml:"retry_base_delay"`

	// Headers are extra headers sent with every upstream request.
	Headers map[string]string `yaml:"headers" toml:"headers"`
}

// SessionsConfig contains bounded conversation history settings.
type SessionsConfig struct {
	// Enabled turns on session history keyed by session_id.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// MaxSessions bounds the number of sessions kept; the least recently
	// used session is evicted first.
	// Default: 1000
	MaxSessions int `yaml:"max_sessions" toml:"max_sessions"`

	// MaxTurns bounds the messages kept per session; oldest are dropped.
	// Default: 20
	MaxTurns int `yaml:"max_turns" toml:"max_turns"`

	// IdleTTL removes sessions not used for this long.
	// Default: 30m
	IdleTTL time.Duration `yaml:"idle_ttl" toml:"idle_ttl"`

	// SweepSchedule is the cron schedule of the idle sweep.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule" toml:"sweep_schedule"`
}

// LedgerConfig contains the outcome ledger settings.
type LedgerConfig struct {
	// Enabled turns on the ledger.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Driver selects the database/sql driver: "sqlite" (pure Go),
	// "sqlite3" (cgo) or "pgx" (PostgreSQL).
	// Default: "sqlite"
	Driver string `yaml:"driver" toml:"driver"`

	// DSN is the data source name. For SQLite drivers it is a file path.
	// Default: "data/ledger.db"
	DSN string `yaml:"dsn" toml:"dsn"`

	// QueueSize is the capacity of the asynchronous write queue. Records
	// are dropped (and counted) when the queue is full.
	// Default: 1000
	QueueSize int `yaml:"queue_size" toml:"queue_size"`

	// WriteTimeout bounds a single insert.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// RetentionDays is how long records are kept. 0 keeps records forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days" toml:"retention_days"`

	// RetentionSchedule is the cron schedule of the pruning job.
	// Default: "0 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule" toml:"retention_schedule"`
}

// HealthConfig contains backend health probing settings.
type HealthConfig struct {
	// Enabled turns on scheduled probing.
	// Default: true
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Schedule is the cron schedule of the probes.
	// Default: "@every 30s"
	Schedule string `yaml:"schedule" toml:"schedule"`

	// CheckTimeout bounds a single probe.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout" toml:"check_timeout"`
}

// SecretsConfig configures where ${secret:name} references are looked up.
// Providers are tried in order: the directory first, then the environment.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable ("openai-key" -> CHATRELAY_SECRET_OPENAI_KEY).
	// Default: "CHATRELAY_SECRET_"
	EnvPrefix string `yaml:"env_prefix" toml:"env_prefix"`

	// Dir holds one file per secret, named after the secret. Files must be
	// mode 0600 or 0400.
	Dir string `yaml:"dir" toml:"dir"`

	// Watch drops cached values when a file in Dir changes.
	// Default: false
	Watch bool `yaml:"watch" toml:"watch"`

	// CacheTTL is how long a resolved value is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`

	// CacheSize bounds the number of cached values.
	// Default: 128
	CacheSize int `yaml:"cache_size" toml:"cache_size"`
}

// RetrievalConfig configures context retrieval. Each subdirectory of Dir is
// a namespace; its .txt and .md files are split into passages and ranked
// with BM25 against the user message.
type RetrievalConfig struct {
	// Enabled turns on retrieval.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Dir is the document root.
	Dir string `yaml:"dir" toml:"dir"`

	// DefaultNamespace is used when a request names none. Empty means
	// requests without a namespace get no context.
	DefaultNamespace string `yaml:"default_namespace" toml:"default_namespace"`

	// TopK is the number of passages added per request.
	// Default: 3
	TopK int `yaml:"top_k" toml:"top_k"`

	// MaxPassageChars truncates each passage in the context message.
	// Default: 4000
	MaxPassageChars int `yaml:"max_passage_chars" toml:"max_passage_chars"`

	// Watch rebuilds a namespace index when its files change.
	// Default: false
	Watch bool `yaml:"watch" toml:"watch"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level" toml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format" toml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source" toml:"add_source"`

	// RedactKeys lists additional attribute keys whose values are masked.
	// api_key, authorization and token are always masked.
	RedactKeys []string `yaml:"redact_keys" toml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path" toml:"path"`

	// Namespace is the metric name prefix.
	// Default: "chatrelay"
	Namespace string `yaml:"namespace" toml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem" toml:"subsystem"`

	// DurationBuckets defines histogram buckets for request, stream and
	// upstream latency (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120]
	DurationBuckets []float64 `yaml:"duration_buckets" toml:"duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure" toml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// Sampler is the sampling strategy: "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler" toml:"sampler"`

	// SampleRatio is the fraction of traces kept by the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "chatrelay"
	ServiceName string `yaml:"service_name" toml:"service_name"`
}
