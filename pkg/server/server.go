package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/proxy/handlers"
	"oqs-hq/chatrelay/pkg/proxy/middleware"
	"oqs-hq/chatrelay/pkg/security/auth"
	"oqs-hq/chatrelay/pkg/telemetry/health"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
	"oqs-hq/chatrelay/pkg/telemetry/tracing"
)

// Build describes the running binary for /version and /config.
type Build struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the components the server routes to. Metrics, Health, Tracer,
// Prompts, Auth and TLS may be nil.
type Deps struct {
	Config   *config.Config
	Backends handlers.Backends
	Relay    handlers.Relay
	Prompts  handlers.PromptSource
	Health   *health.Checker
	Metrics  *metrics.Collector
	Tracer   *tracing.Tracer
	Build    Build

	// Auth guards the chat, models and config endpoints when set.
	Auth *auth.Validator

	// TLS serves HTTPS when set.
	TLS *tls.Config
}

// Server is the HTTP front of the gateway.
type Server struct {
	deps       Deps
	httpServer *http.Server

	// baseCancel cancels the contexts of in-flight requests on shutdown.
	baseCancel context.CancelFunc

	mu        sync.RWMutex
	isRunning bool
}

// New creates a server. It does not listen until Run or Serve is called.
func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.deps.Config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.deps.Config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. In-flight requests are cancelled
// (streams end degraded) and given ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	if s.deps.TLS != nil {
		ln = tls.NewListener(ln, s.deps.TLS)
	}

	baseCtx, baseCancel := context.WithCancel(context.WithoutCancel(ctx))
	s.baseCancel = baseCancel

	cfg := s.deps.Config.Server
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting chat gateway", "address", ln.Addr().String(), "tls", s.deps.TLS != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.setStopped()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections, cancels in-flight requests and waits
// up to ShutdownTimeout for them to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv, cancel, running := s.httpServer, s.baseCancel, s.isRunning
	s.mu.RUnlock()
	if !running || srv == nil {
		return nil
	}

	timeout := s.deps.Config.Server.ShutdownTimeout
	slog.Info("initiating graceful shutdown", "timeout", timeout.String())

	shutdownCtx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("error during server shutdown", "error", err)
		err = fmt.Errorf("server shutdown error: %w", err)
	}

	s.setStopped()
	slog.Info("chat gateway stopped")
	return err
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	cfg := s.deps.Config
	opts := handlers.ChatOptions{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		WriteTimeout: cfg.Relay.ClientWriteTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.RequestIDMiddleware)
	if s.deps.Tracer.Enabled() {
		r.Use(tracing.HTTPMiddleware(s.deps.Tracer))
	}
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.Server.CORS))

	r.Group(func(r chi.Router) {
		if s.deps.Auth != nil {
			r.Use(auth.Middleware(s.deps.Auth, cfg.Server.Auth.Header))
		}

		chat := handlers.NewChatHandler(s.deps.Relay, opts)
		r.Method(http.MethodGet, "/chat", chat)
		r.Method(http.MethodPost, "/chat", chat)
		r.Method(http.MethodPost, "/v1/chat/completions", handlers.NewCompletionsHandler(s.deps.Relay, opts))

		r.Method(http.MethodGet, "/models", handlers.NewModelsHandler(s.deps.Backends))
		r.Method(http.MethodGet, "/v1/models", handlers.NewOpenAIModelsHandler(s.deps.Backends))
		r.Method(http.MethodGet, "/config", handlers.NewConfigHandler(cfg, s.deps.Backends, s.deps.Prompts, s.deps.Build.Version))
	})

	r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(s.deps.Backends))
	r.Get("/version", health.VersionHandler(s.deps.Build.Version, s.deps.Build.Commit, s.deps.Build.BuildTime))

	if s.deps.Health != nil {
		r.Get("/ready", s.deps.Health.ReadinessHandler())
	}
	if s.deps.Metrics != nil && cfg.Telemetry.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}
