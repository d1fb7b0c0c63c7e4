package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/providerfactory"
)

var modelsFlags struct {
	backend string
	format  string
	timeout time.Duration
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models served by each backend",
	Long: `Query every configured backend (or one, with --backend) for its models.

Backends that cannot be reached report their configured default model.

Examples:
  chatrelay models
  chatrelay models --backend ollama --format json`,
	RunE: listModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringVarP(&modelsFlags.backend, "backend", "b", "", "only list this backend")
	modelsCmd.Flags().StringVarP(&modelsFlags.format, "format", "f", "text", "output format: text, json, csv")
	modelsCmd.Flags().DurationVar(&modelsFlags.timeout, "timeout", 10*time.Second, "per-backend timeout")
}

func listModels(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(modelsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := quietLogging(cfg); err != nil {
		return err
	}

	manager := providerfactory.NewManager(cfg.Relay.DefaultBackend)
	defer manager.Close()
	if err := manager.LoadFromConfig(cfg.BackendConfigs()); err != nil {
		return cli.NewCommandError("models", err)
	}

	table, err := modelTable(cmd.Context(), manager, modelsFlags.backend, modelsFlags.timeout)
	if err != nil {
		return cli.NewCommandError("models", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table)
}

// modelTable lists one row per backend and model. An empty backend lists
// every backend in name order.
func modelTable(ctx context.Context, m *providerfactory.Manager, backend string, timeout time.Duration) (*cli.Table, error) {
	names := m.Names()
	if backend != "" {
		if _, err := m.Get(backend); err != nil {
			return nil, err
		}
		names = []string{backend}
	}

	table := &cli.Table{Headers: []string{"backend", "type", "model", "default"}}
	for _, name := range names {
		adapter, err := m.Get(name)
		if err != nil {
			return nil, err
		}

		lctx, cancel := context.WithTimeout(ctx, timeout)
		models := adapter.ListModels(lctx)
		cancel()

		def := adapter.DefaultModel()
		for _, model := range models {
			table.AddRow(name, adapter.Type(), model, model == def)
		}
	}
	return table, nil
}
