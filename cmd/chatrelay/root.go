package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay - LLM chat gateway with a streaming relay core",
	Long: `chatrelay is an HTTP gateway in front of language-model backends.

It relays chat requests to Ollama or OpenAI-compatible backends and streams
the reply back while keeping idle connections alive with heartbeats:
  - /chat answers with JSON, plain lines or server-sent events
  - /v1/chat/completions speaks the OpenAI chat completions dialect
  - Failed backends produce degraded replies instead of errors

Without a configuration file the gateway starts with a single "ollama"
backend that has no address, served by the local echo adapter.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML or TOML; defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration named by --config with environment
// overrides and stores it as the process-wide configuration.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.GetConfig(), nil
}

// setupLogging installs the configured logger as the slog default. CLI
// commands other than run log to stderr at warn unless --verbose is set.
func setupLogging(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	if verbose {
		cfg.Level = "debug"
	}
	logger, err := logging.Setup(cfg, w)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// quietLogging is setupLogging for one-shot commands.
func quietLogging(cfg *config.Config) error {
	lc := cfg.Telemetry.Logging
	lc.Level = "warn"
	lc.Format = "text"
	_, err := setupLogging(lc, os.Stderr)
	return err
}
