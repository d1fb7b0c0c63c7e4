package config

import (
	"sort"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB
	DefaultCORSMaxAge      = 3600
	DefaultAPITitle        = "chatrelay"
	DefaultTLSMinVersion   = "1.2"
	DefaultTLSReload       = 5 * time.Minute
	DefaultAuthHeader      = "Authorization"

	// Relay defaults
	DefaultBackendName        = "ollama"
	DefaultHeartbeatInterval  = 2 * time.Second
	DefaultClientWriteTimeout = 10 * time.Second

	// Backend defaults
	DefaultModel          = "llama3.2:1b"
	DefaultNumCtx         = 1024
	DefaultNumPredict     = 128
	DefaultConnectTimeout = 5 * time.Second
	DefaultUpstreamRead   = 120 * time.Second
	DefaultUpstreamWrite  = 10 * time.Second
	DefaultPoolTimeout    = 5 * time.Second
	DefaultKeepAlive      = "30m"
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// Sessions defaults
	DefaultMaxSessions   = 1000
	DefaultMaxTurns      = 20
	DefaultSessionTTL    = 30 * time.Minute
	DefaultSweepSchedule = "@every 1m"

	// Ledger defaults
	DefaultLedgerDriver            = "sqlite"
	DefaultLedgerDSN               = "data/ledger.db"
	DefaultLedgerQueueSize         = 1000
	DefaultLedgerWriteTimeout      = 5 * time.Second
	DefaultLedgerRetentionDays     = 30
	DefaultLedgerRetentionSchedule = "0 3 * * *"

	// Health defaults
	DefaultHealthSchedule     = "@every 30s"
	DefaultHealthCheckTimeout = 5 * time.Second

	// Secrets defaults
	DefaultSecretEnvPrefix = "CHATRELAY_SECRET_"
	DefaultSecretCacheTTL  = 5 * time.Minute
	DefaultSecretCacheSize = 128

	// Retrieval defaults
	DefaultRetrievalTopK            = 3
	DefaultRetrievalMaxPassageChars = 4000

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "chatrelay"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "always"
	DefaultServiceName      = "chatrelay"
)

// DefaultDurationBuckets are histogram buckets sized for chat latencies,
// from fast echo replies to multi-minute generations.
var DefaultDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// newConfig returns a Config with the boolean defaults that cannot be
// expressed as zero values. Files are decoded on top of it.
func newConfig() Config {
	return Config{
		Server: ServerConfig{
			CORS: CORSConfig{Enabled: true},
		},
		Health: HealthConfig{Enabled: true},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}

// Default returns a complete default configuration: one "ollama" backend
// with no address (served by the local echo adapter).
func Default() *Config {
	cfg := newConfig()
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)
	if cfg.Server.API.Title == "" {
		cfg.Server.API.Title = DefaultAPITitle
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReload
	}
	if cfg.Server.Auth.Header == "" {
		cfg.Server.Auth.Header = DefaultAuthHeader
	}

	// Relay defaults
	if cfg.Relay.DefaultBackend == "" {
		cfg.Relay.DefaultBackend = DefaultBackendName
	}
	if cfg.Relay.HeartbeatInterval == 0 {
		cfg.Relay.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Relay.ClientWriteTimeout == 0 {
		cfg.Relay.ClientWriteTimeout = DefaultClientWriteTimeout
	}

	// Backend defaults - a missing default backend is created without an
	// address so the gateway answers with the echo adapter.
	if cfg.Backends == nil {
		cfg.Backends = make(map[string]BackendConfig)
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends[cfg.Relay.DefaultBackend] = BackendConfig{}
	}
	for name, b := range cfg.Backends {
		applyBackendDefaults(&b)
		cfg.Backends[name] = b
	}

	// Sessions defaults
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = DefaultMaxSessions
	}
	if cfg.Sessions.MaxTurns == 0 {
		cfg.Sessions.MaxTurns = DefaultMaxTurns
	}
	if cfg.Sessions.IdleTTL == 0 {
		cfg.Sessions.IdleTTL = DefaultSessionTTL
	}
	if cfg.Sessions.SweepSchedule == "" {
		cfg.Sessions.SweepSchedule = DefaultSweepSchedule
	}

	// Ledger defaults
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = DefaultLedgerDriver
	}
	if cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = DefaultLedgerDSN
	}
	if cfg.Ledger.QueueSize == 0 {
		cfg.Ledger.QueueSize = DefaultLedgerQueueSize
	}
	if cfg.Ledger.WriteTimeout == 0 {
		cfg.Ledger.WriteTimeout = DefaultLedgerWriteTimeout
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = DefaultLedgerRetentionDays
	}
	if cfg.Ledger.RetentionSchedule == "" {
		cfg.Ledger.RetentionSchedule = DefaultLedgerRetentionSchedule
	}

	// Health defaults
	if cfg.Health.Schedule == "" {
		cfg.Health.Schedule = DefaultHealthSchedule
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretCacheTTL
	}
	if cfg.Secrets.CacheSize == 0 {
		cfg.Secrets.CacheSize = DefaultSecretCacheSize
	}

	// Retrieval defaults
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultRetrievalTopK
	}
	if cfg.Retrieval.MaxPassageChars == 0 {
		cfg.Retrieval.MaxPassageChars = DefaultRetrievalMaxPassageChars
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) == 0 {
		cfg.Telemetry.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	applyTracingDefaults(&cfg.Telemetry.Tracing)
}

func applyTracingDefaults(t *TracingConfig) {
	if t.Endpoint == "" {
		t.Endpoint = DefaultTracingEndpoint
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTracingTimeout
	}
	if t.Sampler == "" {
		t.Sampler = DefaultTracingSampler
	}
	if t.Sampler == "ratio" && t.SampleRatio == 0 {
		t.SampleRatio = 1.0
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
}

func applyBackendDefaults(b *BackendConfig) {
	if b.Model == "" {
		b.Model = DefaultModel
	}
	if b.NumCtx == 0 {
		b.NumCtx = DefaultNumCtx
	}
	if b.NumPredict == 0 {
		b.NumPredict = DefaultNumPredict
	}
	if b.ConnectTimeout == 0 {
		b.ConnectTimeout = DefaultConnectTimeout
	}
	if b.ReadTimeout == 0 {
		b.ReadTimeout = DefaultUpstreamRead
	}
	if b.WriteTimeout == 0 {
		b.WriteTimeout = DefaultUpstreamWrite
	}
	if b.PoolTimeout == 0 {
		b.PoolTimeout = DefaultPoolTimeout
	}
	if b.KeepAlive == "" {
		b.KeepAlive = DefaultKeepAlive
	}
	if b.RetryBaseDelay == 0 {
		b.RetryBaseDelay = DefaultRetryBaseDelay
	}
}

func applyCORSDefaults(c *CORSConfig) {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-Session-ID"}
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCORSMaxAge
	}
}

// BackendConfigs converts the backends section into adapter configurations,
// sorted by name.
func (c *Config) BackendConfigs() []providers.BackendConfig {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]providers.BackendConfig, 0, len(names))
	for _, name := range names {
		b := c.Backends[name]
		out = append(out, providers.BackendConfig{
			Name:           name,
			Type:           b.Type,
			BaseURL:        b.BaseURL,
			APIKey:         b.APIKey,
			Model:          b.Model,
			NumCtx:         b.NumCtx,
			NumPredict:     b.NumPredict,
			ConnectTimeout: b.ConnectTimeout,
			ReadTimeout:    b.ReadTimeout,
			WriteTimeout:   b.WriteTimeout,
			PoolTimeout:    b.PoolTimeout,
			KeepAlive:      b.KeepAlive,
			Retries:        b.Retries,
			RetryBaseDelay: b.RetryBaseDelay,
			Headers:        b.Headers,
		})
	}
	return out
}

// DefaultBackend returns the configuration of the default backend.
func (c *Config) DefaultBackend() BackendConfig {
	return c.Backends[c.Relay.DefaultBackend]
}
