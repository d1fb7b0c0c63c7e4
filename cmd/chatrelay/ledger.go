package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/ledger"
)

var ledgerFlags struct {
	backend string
	status  string
	client  string
	since   string
	until   string
	days    int
}

var ledgerListFlags struct {
	limit  int
	format string
}

var ledgerExportFlags struct {
	limit  int
	format string
	output string
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the outcome ledger",
	Long: `Query, export and prune the outcome ledger.

The ledger records one row of metadata per relayed request: backend, model,
provenance, status, fragment and heartbeat counts, attempts and latency.
Prompts and replies are never stored.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ledger records",
	Long: `List ledger records, newest first.

Examples:
  # Last 20 records
  chatrelay ledger list --limit 20

  # Degraded requests of the last hour
  chatrelay ledger list --status degraded --since 1h`,
	RunE: listLedger,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export ledger records as JSON or CSV",
	Long: `Export ledger records to a file or stdout.

Examples:
  chatrelay ledger export --format csv --output ledger.csv
  chatrelay ledger export --since 2026-01-01T00:00:00Z --until 2026-02-01T00:00:00Z`,
	RunE: exportLedger,
}

var ledgerPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger records past retention",
	Long: `Delete records older than the retention period.

--days overrides ledger.retention_days from the configuration.`,
	RunE: pruneLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerExportCmd, ledgerPruneCmd)

	for _, c := range []*cobra.Command{ledgerListCmd, ledgerExportCmd} {
		c.Flags().StringVar(&ledgerFlags.backend, "backend", "", "filter by backend name")
		c.Flags().StringVar(&ledgerFlags.status, "status", "", "filter by status: ok, empty, degraded, echo")
		c.Flags().StringVar(&ledgerFlags.client, "client", "", "filter by authenticated client name")
		c.Flags().StringVar(&ledgerFlags.since, "since", "", "only records after this time (RFC3339 or duration such as 24h)")
		c.Flags().StringVar(&ledgerFlags.until, "until", "", "only records before this time (RFC3339 or duration)")
	}
	ledgerListCmd.Flags().IntVar(&ledgerListFlags.limit, "limit", ledger.DefaultQueryLimit, "maximum number of records")
	ledgerListCmd.Flags().StringVarP(&ledgerListFlags.format, "format", "f", "text", "output format: text, json, csv")

	ledgerExportCmd.Flags().StringVarP(&ledgerExportFlags.format, "format", "f", ledger.FormatJSON, "export format: json, csv")
	ledgerExportCmd.Flags().StringVarP(&ledgerExportFlags.output, "output", "o", "", "output file (stdout when empty)")
	ledgerExportCmd.Flags().IntVar(&ledgerExportFlags.limit, "limit", 10000, "maximum number of records")

	ledgerPruneCmd.Flags().IntVar(&ledgerFlags.days, "days", -1, "retention in days (configured value when negative)")
}

// openLedgerStorage opens the configured ledger database directly, without
// a recorder.
func openLedgerStorage(ctx context.Context) (*config.Config, ledger.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := quietLogging(cfg); err != nil {
		return nil, nil, err
	}
	storage, err := ledger.OpenSQL(ctx, ledger.SQLConfig{Driver: cfg.Ledger.Driver, DSN: cfg.Ledger.DSN})
	if err != nil {
		return nil, nil, err
	}
	return cfg, storage, nil
}

func ledgerQuery(now time.Time, limit int) (ledger.Query, error) {
	q := ledger.Query{
		Backend: ledgerFlags.backend,
		Status:  ledgerFlags.status,
		Client:  ledgerFlags.client,
		Limit:   limit,
	}
	var err error
	if q.Since, err = parseTimeFlag("since", ledgerFlags.since, now); err != nil {
		return q, err
	}
	if q.Until, err = parseTimeFlag("until", ledgerFlags.until, now); err != nil {
		return q, err
	}
	return q, nil
}

// parseTimeFlag accepts an RFC3339 timestamp or a duration counted back
// from now. An empty value yields the zero time.
func parseTimeFlag(name, value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q: want RFC3339 time or duration", name, value)
}

func listLedger(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(ledgerListFlags.format)
	if err != nil {
		return err
	}
	q, err := ledgerQuery(time.Now(), ledgerListFlags.limit)
	if err != nil {
		return err
	}

	_, storage, err := openLedgerStorage(cmd.Context())
	if err != nil {
		return cli.NewCommandError("ledger list", err)
	}
	defer storage.Close()

	records, err := storage.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("ledger list", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), recordTable(records))
}

func recordTable(records []*ledger.Record) *cli.Table {
	t := &cli.Table{Headers: []string{"time", "backend", "model", "mode", "status", "provider", "fragments", "heartbeats", "attempts", "latency_ms", "client"}}
	for _, r := range records {
		t.AddRow(r.Time.UTC().Format(time.RFC3339), r.Backend, r.Model, r.Mode, r.Status, r.Provider,
			r.Fragments, r.Heartbeats, r.Attempts, strconv.FormatInt(r.LatencyMs, 10), r.Client)
	}
	return t
}

func exportLedger(cmd *cobra.Command, args []string) error {
	switch ledgerExportFlags.format {
	case ledger.FormatJSON, ledger.FormatCSV:
	default:
		return fmt.Errorf("unsupported export format %q (valid: json, csv)", ledgerExportFlags.format)
	}
	q, err := ledgerQuery(time.Now(), ledgerExportFlags.limit)
	if err != nil {
		return err
	}

	_, storage, err := openLedgerStorage(cmd.Context())
	if err != nil {
		return cli.NewCommandError("ledger export", err)
	}
	defer storage.Close()

	records, err := storage.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("ledger export", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if ledgerExportFlags.output != "" {
		f, err := os.Create(ledgerExportFlags.output)
		if err != nil {
			return cli.NewCommandError("ledger export", err)
		}
		defer f.Close()
		w = f
	}
	if err := ledger.Export(w, records, ledgerExportFlags.format); err != nil {
		return cli.NewCommandError("ledger export", err)
	}
	if ledgerExportFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d records to %s\n", len(records), ledgerExportFlags.output)
	}
	return nil
}

func pruneLedger(cmd *cobra.Command, args []string) error {
	cfg, storage, err := openLedgerStorage(cmd.Context())
	if err != nil {
		return cli.NewCommandError("ledger prune", err)
	}
	defer storage.Close()

	days := cfg.Ledger.RetentionDays
	if ledgerFlags.days >= 0 {
		days = ledgerFlags.days
	}
	if days == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Retention disabled, nothing pruned")
		return nil
	}

	n, err := ledger.NewPruner(storage, days).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("ledger prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d records older than %d days\n", n, days)
	return nil
}
