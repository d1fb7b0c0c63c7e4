package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/ledger"
	"oqs-hq/chatrelay/pkg/prompt"
	"oqs-hq/chatrelay/pkg/providerfactory"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/relay"
	"oqs-hq/chatrelay/pkg/retrieval"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/security/auth"
	"oqs-hq/chatrelay/pkg/security/secrets"
	"oqs-hq/chatrelay/pkg/sessions"
	"oqs-hq/chatrelay/pkg/telemetry/health"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
	"oqs-hq/chatrelay/pkg/telemetry/tracing"
)

const tracerShutdownTimeout = 5 * time.Second

// gateway holds the components shared by the run and ask commands.
type gateway struct {
	cfg       *config.Config
	backends  *providerfactory.Manager
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	secrets   *secrets.Manager
	auth      *auth.Validator
	prompts   *prompt.Source
	retriever *retrieval.Store
	sessions  *sessions.Store
	ledger    *ledger.Ledger
	health    *health.Checker
	scheduler *scheduler.Scheduler
	router    *relay.Router
}

// buildGateway wires backends, the relay router and the optional session,
// ledger and health layers from cfg. Scheduled jobs are registered but the
// scheduler is not started.
func buildGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	g := &gateway{
		cfg:       cfg,
		metrics:   metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		scheduler: scheduler.New("scheduler"),
	}

	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	g.tracer = tracer

	if g.secrets, err = secrets.FromConfig(cfg.Secrets); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}
	backendConfigs, err := resolveBackendSecrets(ctx, g.secrets, cfg.BackendConfigs())
	if err != nil {
		g.Close()
		return nil, err
	}

	if cfg.Server.Auth.Enabled {
		keys, err := auth.KeysFromConfig(ctx, cfg.Server.Auth, g.secrets)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to load API keys: %w", err)
		}
		g.auth = auth.NewValidator(keys)
		g.secrets.OnChange(g.reloadKeys)
	}

	g.backends = providerfactory.NewManager(cfg.Relay.DefaultBackend)
	if err := g.backends.LoadFromConfig(backendConfigs); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	prompts, err := loadPrompts(cfg)
	if err != nil {
		g.Close()
		return nil, err
	}
	g.prompts = prompts

	opts := []relay.Option{
		relay.WithPromptSource(g.prompts),
		relay.WithMetrics(g.metrics),
		relay.WithTracer(g.tracer),
		relay.WithHeartbeat(cfg.Relay.HeartbeatInterval),
	}

	if cfg.Retrieval.Enabled {
		store, err := retrieval.FromConfig(cfg.Retrieval)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to open retrieval directory: %w", err)
		}
		g.retriever = store
		opts = append(opts, relay.WithContextSource(store, cfg.Retrieval.DefaultNamespace))
	}

	if cfg.Sessions.Enabled {
		store, err := sessions.New(cfg.Sessions, g.metrics)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		if err := store.Schedule(g.scheduler, cfg.Sessions.SweepSchedule); err != nil {
			g.Close()
			return nil, err
		}
		g.sessions = store
		opts = append(opts, relay.WithHistory(store))
	}

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(ctx, cfg.Ledger, g.metrics)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		g.ledger = l
		if err := l.Schedule(g.scheduler); err != nil {
			g.Close()
			return nil, err
		}
		opts = append(opts, relay.WithObserver(l.Recorder))
	}

	g.health = health.New(cfg.Health.CheckTimeout, g.metrics)
	g.health.RegisterBackends(g.backends.Adapters())
	if cfg.Health.Enabled {
		if err := g.health.Schedule(g.scheduler, cfg.Health.Schedule); err != nil {
			g.Close()
			return nil, err
		}
	}

	g.router = relay.NewRouter(g.backends, opts...)
	return g, nil
}

// resolveBackendSecrets expands ${secret:name} references in the API key
// and headers of every backend.
func resolveBackendSecrets(ctx context.Context, m *secrets.Manager, backends []providers.BackendConfig) ([]providers.BackendConfig, error) {
	for i := range backends {
		b := &backends[i]
		key, err := m.Resolve(ctx, b.APIKey)
		if err != nil {
			return nil, fmt.Errorf("backend %s api_key: %w", b.Name, err)
		}
		b.APIKey = key

		if len(b.Headers) == 0 {
			continue
		}
		headers := make(map[string]string, len(b.Headers))
		for name, value := range b.Headers {
			if headers[name], err = m.Resolve(ctx, value); err != nil {
				return nil, fmt.Errorf("backend %s header %s: %w", b.Name, name, err)
			}
		}
		b.Headers = headers
	}
	return backends, nil
}

// reloadKeys resolves the client keys again after a secret changed. The
// previous keys stay active when resolution fails.
func (g *gateway) reloadKeys() {
	keys, err := auth.KeysFromConfig(context.Background(), g.cfg.Server.Auth, g.secrets)
	if err != nil {
		slog.Warn("failed to reload API keys, keeping previous keys", "error", err)
		return
	}
	g.auth.Replace(keys)
	slog.Info("API keys reloaded", "keys", len(keys))
}

// loadPrompts returns the system prompt source: the watched file when one
// is configured, the inline prompt otherwise.
func loadPrompts(cfg *config.Config) (*prompt.Source, error) {
	if cfg.Relay.SystemPromptFile == "" {
		return prompt.NewStatic(cfg.Relay.SystemPrompt), nil
	}
	src, err := prompt.NewFileSource(cfg.Relay.SystemPromptFile, cfg.Relay.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	return src, nil
}

// Close stops scheduled jobs, drains the ledger, closes backends and
// flushes pending spans.
func (g *gateway) Close() error {
	if g.scheduler != nil {
		g.scheduler.Stop()
	}

	var errs []error
	if g.ledger != nil {
		if err := g.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	if g.backends != nil {
		if err := g.backends.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backends: %w", err))
		}
	}
	if g.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := g.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
		return err
	}
	return nil
}
