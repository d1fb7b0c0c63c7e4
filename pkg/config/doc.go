// Package config provides configuration management for chatrelay.
//
// Configuration is read from a YAML or TOML file (chosen by extension),
// completed with defaults, overridden from the environment and validated.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("chatrelay.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("chatrelay.toml")
//	cfg, err := config.LoadConfigWithEnvOverrides("") // defaults + environment
//
// ${VAR} references inside the file are expanded before parsing, which is
// the recommended way to pass API keys.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CHATRELAY_SECTION_FIELD:
//
//   - CHATRELAY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CHATRELAY_RELAY_HEARTBEAT_INTERVAL overrides relay.heartbeat_interval
//   - CHATRELAY_BACKENDS_OLLAMA_BASE_URL overrides backends.ollama.base_url
//   - CHATRELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Defaults
//
// With no file and no environment the gateway listens on 127.0.0.1:8080 and
// serves a single "ollama" backend without an address, which answers every
// prompt through the local echo adapter.
//
// # Validation
//
// Validate collects every problem into a ValidationError holding one
// FieldError per offending field.
package config
