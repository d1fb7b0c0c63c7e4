package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/relay"
)

var askFlags struct {
	backend    string
	model      string
	session    string
	system     string
	namespace  string
	numPredict int
	stream     bool
	showMeta   bool
}

var askCmd = &cobra.Command{
	Use:   "ask [flags] PROMPT...",
	Short: "Send a single chat request and print the reply",
	Long: `Send one chat request through the relay core without starting the server.

The request goes through the same routing, retry and degradation path as
/chat. With --stream the reply is printed as it arrives.

Examples:
  # Ask the default backend
  chatrelay ask "why is the sky blue?"

  # Stream from a specific backend and model
  chatrelay ask --stream --backend hosted --model gpt-4o-mini "write a haiku"

  # Ground the answer in the "handbook" retrieval namespace
  chatrelay ask --namespace handbook "how many vacation days do I get?"

  # Show provenance after the reply
  chatrelay ask --meta "hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFlags.backend, "backend", "b", "", "backend name (default backend when empty)")
	askCmd.Flags().StringVarP(&askFlags.model, "model", "m", "", "model override")
	askCmd.Flags().StringVar(&askFlags.session, "session", "", "session id for conversation history")
	askCmd.Flags().StringVar(&askFlags.system, "system", "", "system prompt override")
	askCmd.Flags().StringVar(&askFlags.namespace, "namespace", "", "retrieval namespace (retrieval.default_namespace when empty)")
	askCmd.Flags().IntVar(&askFlags.numPredict, "num-predict", -1, "output token budget (backend default when negative)")
	askCmd.Flags().BoolVarP(&askFlags.stream, "stream", "s", false, "print the reply incrementally")
	askCmd.Flags().BoolVar(&askFlags.showMeta, "meta", false, "print status and provider after the reply")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := quietLogging(cfg); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}
	defer gw.Close()

	req := providers.ChatRequest{
		Message:      strings.Join(args, " "),
		Model:        askFlags.model,
		Stream:       askFlags.stream,
		SystemPrompt: askFlags.system,
		Backend:      askFlags.backend,
		SessionID:    askFlags.session,
		Namespace:    askFlags.namespace,
	}
	if askFlags.numPredict >= 0 {
		n := askFlags.numPredict
		req.NumPredict = &n
	}

	route, err := gw.router.Resolve(req)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}

	out := cmd.OutOrStdout()
	if !route.Stream {
		outcome := gw.router.Complete(ctx, route)
		fmt.Fprintln(out, outcome.Reply)
		if askFlags.showMeta {
			printMeta(cmd.ErrOrStderr(), "status", string(outcome.Status), "provider", outcome.Provider, "done_reason", outcome.DoneReason)
		}
		return nil
	}

	sink := bufio.NewWriter(out)
	st, err := gw.router.Stream(ctx, route, sink, terminalFramer{})
	if err != nil {
		return cli.NewCommandError("ask", err)
	}
	if askFlags.showMeta {
		status := string(providers.StatusOK)
		if st.Terminal.Kind == providers.FragmentError {
			status = string(providers.StatusDegraded)
		}
		printMeta(cmd.ErrOrStderr(), "status", status, "backend", route.Backend, "done_reason", st.Terminal.Reason,
			"fragments", fmt.Sprint(st.Fragments), "heartbeats", fmt.Sprint(st.Heartbeats))
	}
	return nil
}

// printMeta writes key=value pairs on one line, skipping empty values.
func printMeta(w io.Writer, kv ...string) {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			parts = append(parts, kv[i]+"="+kv[i+1])
		}
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}

// terminalFramer writes text as it arrives for an interactive terminal.
// Heartbeats are dropped and the reply ends with a newline.
type terminalFramer struct{}

var _ relay.Framer = terminalFramer{}

func (terminalFramer) ContentType() string { return "text/plain; charset=utf-8" }

func (terminalFramer) Encode(f providers.Fragment) [][]byte {
	switch f.Kind {
	case providers.FragmentText:
		return [][]byte{[]byte(f.Text)}
	case providers.FragmentDone:
		if f.Reason == providers.DoneReasonStop || f.Reason == providers.DoneReasonEOF {
			return [][]byte{[]byte("\n")}
		}
		return [][]byte{[]byte("\n[done:" + f.Reason + "]\n")}
	case providers.FragmentError:
		return [][]byte{[]byte("\n" + f.Text + "\n")}
	default:
		return nil
	}
}
