package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/prompt"
	tlsconf "oqs-hq/chatrelay/pkg/security/tls"
	"oqs-hq/chatrelay/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the chatrelay gateway",
	Long: `Start the chatrelay gateway with the specified configuration.

The server listens on the configured address and relays chat requests to the
configured backends. Streams carry heartbeats while a backend is silent, and
failing backends produce degraded replies.

Examples:
  # Start with defaults (echo backend on 127.0.0.1:8080)
  chatrelay run

  # Start with a config file
  chatrelay run --config /etc/chatrelay/config.yaml

  # Override listen address
  chatrelay run --listen 0.0.0.0:8080

  # Validate config without starting server
  chatrelay run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := setupLogging(cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg)

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer gw.Close()

	fmt.Fprintf(out, "✓ Backends initialized (%d backends, default %q)\n", len(gw.backends.Names()), gw.backends.DefaultName())
	if gw.sessions != nil {
		fmt.Fprintln(out, "✓ Session history enabled")
	}
	if gw.retriever != nil {
		fmt.Fprintf(out, "✓ Retrieval enabled (%s)\n", gw.retriever.Dir())
	}
	if gw.ledger != nil {
		fmt.Fprintf(out, "✓ Ledger opened (%s)\n", cfg.Ledger.Driver)
	}
	if gw.tracer.Enabled() {
		fmt.Fprintf(out, "✓ Tracing to %s\n", cfg.Telemetry.Tracing.Endpoint)
	}
	if gw.auth != nil {
		fmt.Fprintf(out, "✓ API key authentication enabled (%d keys)\n", gw.auth.Len())
	}

	var serverTLS *tls.Config
	if cfg.Server.TLS.Enabled {
		tc, reloader, err := tlsconf.ServerConfig(cfg.Server.TLS)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to configure TLS: %w", err))
		}
		if err := reloader.Schedule(gw.scheduler, cfg.Server.TLS.ReloadInterval); err != nil {
			return cli.NewCommandError("run", err)
		}
		serverTLS = tc
		fmt.Fprintf(out, "✓ TLS enabled (min version %s)\n", cfg.Server.TLS.MinVersion)
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		Backends: gw.backends,
		Relay:    gw.router,
		Prompts:  gw.prompts,
		Health:   gw.health,
		Metrics:  gw.metrics,
		Tracer:   gw.tracer,
		Auth:     gw.auth,
		TLS:      serverTLS,
		Build: server.Build{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
	})

	if err := gw.scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting HTTP server", "address", cfg.Server.ListenAddress)
		return srv.Run(gctx)
	})
	if gw.prompts.Path() != "" {
		group.Go(func() error {
			if err := gw.prompts.Watch(gctx, prompt.DefaultDebounceInterval); err != nil {
				logger.Warn("system prompt watcher stopped", "path", gw.prompts.Path(), "error", err)
			}
			return nil
		})
	}

	if cfg.Secrets.Watch && gw.secrets.Watchable() {
		group.Go(func() error {
			if err := gw.secrets.Watch(gctx); err != nil {
				logger.Warn("secrets watcher stopped", "error", err)
			}
			return nil
		})
	}

	if gw.retriever != nil && cfg.Retrieval.Watch {
		group.Go(func() error {
			if err := gw.retriever.Watch(gctx); err != nil {
				logger.Warn("retrieval watcher stopped", "dir", gw.retriever.Dir(), "error", err)
			}
			return nil
		})
	}

	scheme := "http"
	if serverTLS != nil {
		scheme = "https"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: %s://%s/health\n", scheme, cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chatrelay v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("backends configured", "count", len(cfg.Backends), "default", cfg.Relay.DefaultBackend)
	if cfg.Relay.SystemPromptFile != "" {
		slog.Debug("system prompt file", "path", cfg.Relay.SystemPromptFile)
	}
	if cfg.Ledger.Enabled {
		slog.Debug("ledger enabled", "driver", cfg.Ledger.Driver)
	}
}
