package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oqs-hq/chatrelay/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration named by --config, apply environment overrides and
defaults, and report every validation error.

Exits with status 2 when the configuration is invalid.

Examples:
  chatrelay validate --config config.yaml
  CHATRELAY_RELAY_HEARTBEAT_INTERVAL=0s chatrelay validate -c config.toml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				fmt.Fprintf(out, "✗ %s\n", fe.Error())
			}
		}
		return err
	}

	fmt.Fprintln(out, "✓ Configuration valid")
	if verbose {
		fmt.Fprintf(out, "  listen address:  %s\n", cfg.Server.ListenAddress)
		fmt.Fprintf(out, "  default backend: %s\n", cfg.Relay.DefaultBackend)
		for _, b := range cfg.BackendConfigs() {
			addr := b.BaseURL
			if addr == "" {
				addr = "(echo)"
			}
			fmt.Fprintf(out, "  backend %s: %s %s\n", b.Name, addr, b.Model)
		}
	}
	return nil
}
