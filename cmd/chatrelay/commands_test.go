package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"oqs-hq/chatrelay/pkg/cli"
	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providerfactory"
	"oqs-hq/chatrelay/pkg/providers"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { config.SetConfig(nil) })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	good := writeConfig(t, `
relay:
  default_backend: local
backends:
  local:
    type: echo
`)
	out, err := execute(t, "--config", good, "validate")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("unexpected output %q", out)
	}

	bad := writeConfig(t, `
relay:
  default_backend: missing
  heartbeat_interval: -1s
backends:
  local:
    type: echo
`)
	out, err = execute(t, "--config", bad, "validate")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
	}
	if !strings.Contains(out, "relay.default_backend") || !strings.Contains(out, "relay.heartbeat_interval") {
		t.Errorf("expected both field errors in output:\n%s", out)
	}
}

func TestAskAndLedger(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ledger.db")
	path := writeConfig(t, `
relay:
  default_backend: local
backends:
  local:
    type: echo
ledger:
  enabled: true
  driver: sqlite
  dsn: `+dsn+`
`)

	out, err := execute(t, "--config", path, "ask", "hello", "there")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if out != "You said: hello there\n" {
		t.Errorf("ask output = %q", out)
	}

	out, err = execute(t, "--config", path, "ledger", "list", "--format", "json")
	if err != nil {
		t.Fatalf("ledger list failed: %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(rows))
	}
	if rows[0]["status"] != "echo" || rows[0]["backend"] != "local" || rows[0]["mode"] != "once" {
		t.Errorf("unexpected row %v", rows[0])
	}

	out, err = execute(t, "--config", path, "ledger", "prune", "--days", "1")
	if err != nil {
		t.Fatalf("ledger prune failed: %v", err)
	}
	if !strings.Contains(out, "Pruned 0 records") {
		t.Errorf("unexpected prune output %q", out)
	}
}

func TestBuildGateway_Defaults(t *testing.T) {
	cfg := config.Default()

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildGateway() failed: %v", err)
	}
	defer gw.Close()

	if gw.sessions != nil || gw.ledger != nil {
		t.Error("optional layers should be disabled by default")
	}
	if gw.health == nil || gw.router == nil {
		t.Fatal("health checker and router must be built")
	}

	route, err := gw.router.Resolve(providers.ChatRequest{Message: "ping"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	outcome := gw.router.Complete(context.Background(), route)
	if outcome.Reply != "You said: ping" || outcome.Status != providers.StatusEcho {
		t.Errorf("unexpected outcome %+v", outcome)
	}
}

func TestBuildGateway_Secrets(t *testing.T) {
	t.Setenv("CHATRELAY_SECRET_HOSTED_KEY", "sk-hosted")
	t.Setenv("CHATRELAY_SECRET_MOBILE_KEY", "sk-mobile")

	cfg := config.Default()
	cfg.Backends["hosted"] = config.BackendConfig{
		Type:    "openai",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "${secret:hosted-key}",
		Model:   "gpt-4o-mini",
		Headers: map[string]string{"OpenAI-Organization": "${secret:hosted-key}"},
	}
	config.ApplyDefaults(cfg)
	cfg.Server.Auth = config.AuthConfig{
		Enabled: true,
		Header:  "Authorization",
		Keys:    []config.APIKeyConfig{{Name: "mobile", Key: "${secret:mobile-key}"}},
	}

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildGateway() failed: %v", err)
	}
	defer gw.Close()

	_, hosted, err := gw.backends.Lookup("hosted")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if hosted.APIKey != "sk-hosted" || hosted.Headers["OpenAI-Organization"] != "sk-hosted" {
		t.Errorf("secrets not resolved: %+v", hosted)
	}
	if cfg.Backends["hosted"].APIKey != "${secret:hosted-key}" {
		t.Error("resolved values must not leak back into the configuration")
	}

	if gw.auth == nil {
		t.Fatal("expected auth validator")
	}
	if k, err := gw.auth.Validate("sk-mobile"); err != nil || k.Name != "mobile" {
		t.Errorf("Validate() = %+v, %v", k, err)
	}
}

func TestBuildGateway_MissingSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Backends["hosted"] = config.BackendConfig{
		Type:    "openai",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "${secret:never-set}",
		Model:   "gpt-4o-mini",
	}
	config.ApplyDefaults(cfg)

	if _, err := buildGateway(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "backend hosted api_key") {
		t.Errorf("expected unresolved secret error, got %v", err)
	}
}

func TestBuildGateway_SessionsAndPromptFile(t *testing.T) {
	promptPath := filepath.Join(t.TempDir(), "system.txt")
	if err := os.WriteFile(promptPath, []byte("be brief"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Sessions.Enabled = true
	cfg.Relay.SystemPromptFile = promptPath

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildGateway() failed: %v", err)
	}
	defer gw.Close()

	if gw.sessions == nil {
		t.Fatal("session store not built")
	}
	if gw.prompts.SystemPrompt() != "be brief" {
		t.Errorf("SystemPrompt() = %q", gw.prompts.SystemPrompt())
	}
}

func TestBuildGateway_Retrieval(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "handbook"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "handbook", "leave.md"), []byte("Vacation is 22 days a year."), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Retrieval.Enabled = true
	cfg.Retrieval.Dir = dir
	cfg.Retrieval.DefaultNamespace = "handbook"

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildGateway() failed: %v", err)
	}
	defer gw.Close()

	if gw.retriever == nil {
		t.Fatal("retriever not built")
	}
	route, err := gw.router.Resolve(providers.ChatRequest{Message: "how many vacation days?"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if route.Namespace != "handbook" {
		t.Errorf("expected default namespace, got %q", route.Namespace)
	}
	passages, err := gw.retriever.Search(context.Background(), route.Namespace, route.Prompt)
	if err != nil || len(passages) != 1 {
		t.Errorf("Search() = %q, %v", passages, err)
	}

	cfg.Retrieval.Dir = filepath.Join(dir, "missing")
	if _, err := buildGateway(context.Background(), cfg); err == nil {
		t.Error("expected error for a missing retrieval directory")
	}
}

func TestModelTable(t *testing.T) {
	m := providerfactory.NewManager("ollama")
	defer m.Close()
	if err := m.LoadFromConfig([]providers.BackendConfig{{Name: "ollama", Model: "llama3.2:1b"}}); err != nil {
		t.Fatal(err)
	}

	table, err := modelTable(context.Background(), m, "", time.Second)
	if err != nil {
		t.Fatalf("modelTable() failed: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %v", table.Rows)
	}
	row := table.Rows[0]
	if row[0] != "ollama" || row[1] != providers.TypeEcho || row[2] != "llama3.2:1b" || row[3] != "true" {
		t.Errorf("unexpected row %v", row)
	}

	if _, err := modelTable(context.Background(), m, "missing", time.Second); !errors.Is(err, providerfactory.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseTimeFlag("since", "", now)
	if err != nil || !got.IsZero() {
		t.Errorf("empty value = %v, %v", got, err)
	}

	got, err = parseTimeFlag("since", "2h", now)
	if err != nil || !got.Equal(now.Add(-2*time.Hour)) {
		t.Errorf("duration value = %v, %v", got, err)
	}

	got, err = parseTimeFlag("since", "2026-01-01T00:00:00Z", now)
	if err != nil || got.Year() != 2026 || got.Month() != time.January {
		t.Errorf("RFC3339 value = %v, %v", got, err)
	}

	if _, err := parseTimeFlag("since", "yesterday", now); err == nil {
		t.Error("expected error for invalid value")
	}
}

func TestTerminalFramer(t *testing.T) {
	var f terminalFramer
	var buf bytes.Buffer
	for _, frag := range []providers.Fragment{
		providers.HeartbeatFragment(),
		providers.TextFragment("Hel"),
		providers.HeartbeatFragment(),
		providers.TextFragment("lo"),
		providers.DoneFragment(providers.DoneReasonStop),
	} {
		for _, unit := range f.Encode(frag) {
			buf.Write(unit)
		}
	}
	if buf.String() != "Hello\n" {
		t.Errorf("framed output = %q, want %q", buf.String(), "Hello\n")
	}

	units := f.Encode(providers.DoneFragment("length"))
	if len(units) != 1 || string(units[0]) != "\n[done:length]\n" {
		t.Errorf("unexpected length marker %q", units)
	}
}
