package providerfactory

import (
	"fmt"
	"log/slog"
	"strings"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/providers/echo"
	"oqs-hq/chatrelay/pkg/providers/ollama"
	"oqs-hq/chatrelay/pkg/providers/openai"
)

// NewAdapter creates the adapter for a backend configuration.
//
// Supported types:
//   - "ollama": native Ollama API
//   - "openai": hosted OpenAI-compatible API
//   - "echo":   local echo, no network
//
// A backend without a base URL is always served by the echo adapter, which
// keeps the gateway usable when no inference server is configured. When the
// type is empty it is inferred from the name.
func NewAdapter(cfg providers.BackendConfig) (providers.Adapter, error) {
	if cfg.Type == "" {
		cfg.Type = inferType(cfg.Name)
	}

	if strings.TrimSpace(cfg.BaseURL) == "" || cfg.Type == providers.TypeEcho {
		slog.Info("backend has no address, using local echo",
			"backend", cfg.Name,
			"model", cfg.Model,
		)
		return echo.New(cfg.Name, cfg.Model), nil
	}

	var (
		adapter providers.Adapter
		err     error
	)
	switch cfg.Type {
	case providers.TypeOllama:
		adapter, err = ollama.New(cfg)
	case providers.TypeOpenAI:
		adapter, err = openai.New(cfg)
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported backend type %q (supported: ollama, openai, echo)", cfg.Type),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create backend %q: %w", cfg.Name, err)
	}
	return adapter, nil
}

func inferType(name string) string {
	switch strings.ToLower(name) {
	case "openai", "hosted":
		return providers.TypeOpenAI
	case "echo", "local-echo":
		return providers.TypeEcho
	default:
		return providers.TypeOllama
	}
}
