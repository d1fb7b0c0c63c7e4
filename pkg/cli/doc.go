/*
Package cli provides command-line helpers shared by the chatrelay commands:
output formatting, error-to-exit-code mapping and signal handling.

Output Formatting:

Listing commands build a Table and render it in the format chosen with
--format:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	t := &cli.Table{Headers: []string{"backend", "model"}}
	t.AddRow("ollama", "llama3.2:1b")
	return cli.NewFormatter(format).FormatTo(os.Stdout, t)

Exit Codes:

ExitCode maps a command error to a process exit code. Configuration errors
exit with 2, everything else with 1.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
