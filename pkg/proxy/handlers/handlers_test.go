package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providerfactory"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/providers/echo"
	"oqs-hq/chatrelay/pkg/proxy/types"
	"oqs-hq/chatrelay/pkg/relay"
)

// countingAdapter is the echo adapter with a call counter.
type countingAdapter struct {
	*echo.Adapter
	calls atomic.Int64
}

func (c *countingAdapter) CompleteOnce(ctx context.Context, prompt string, p providers.Params) (providers.RelayOutcome, error) {
	c.calls.Add(1)
	return c.Adapter.CompleteOnce(ctx, prompt, p)
}

func (c *countingAdapter) CompleteStreaming(ctx context.Context, prompt string, p providers.Params) (<-chan providers.Fragment, error) {
	c.calls.Add(1)
	return c.Adapter.CompleteStreaming(ctx, prompt, p)
}

type staticPrompt string

func (s staticPrompt) SystemPrompt() string { return string(s) }

type fixture struct {
	backends *providerfactory.Manager
	router   *relay.Router
	echo     *countingAdapter
	mux      *http.ServeMux
}

// newFixture serves an echo backend named "ollama" and, when upstream is
// not nil, an Ollama backend named "remote" pointing at it.
func newFixture(t *testing.T, upstream *httptest.Server) *fixture {
	t.Helper()

	m := providerfactory.NewManager("ollama")
	t.Cleanup(func() { _ = m.Close() })

	ea := &countingAdapter{Adapter: echo.New("ollama", "llama3.2:1b")}
	m.Register(ea, providers.BackendConfig{Name: "ollama", Model: "llama3.2:1b", NumCtx: 1024, NumPredict: 128})

	if upstream != nil {
		if err := m.Add(providers.BackendConfig{
			Name:           "remote",
			Type:           providers.TypeOllama,
			BaseURL:        upstream.URL,
			Model:          "qwen2.5:0.5b",
			ConnectTimeout: time.Second,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   time.Second,
			PoolTimeout:    time.Second,
			RetryBaseDelay: time.Millisecond,
		}); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	router := relay.NewRouter(m, relay.WithHeartbeat(time.Second))
	opts := ChatOptions{MaxBodyBytes: 1 << 20, WriteTimeout: time.Second}

	cfg := config.Default()
	mux := http.NewServeMux()
	mux.Handle("/chat", NewChatHandler(router, opts))
	mux.Handle("/v1/chat/completions", NewCompletionsHandler(router, opts))
	mux.Handle("/models", NewModelsHandler(m))
	mux.Handle("/v1/models", NewOpenAIModelsHandler(m))
	mux.Handle("/health", NewHealthHandler(m))
	mux.Handle("/config", NewConfigHandler(cfg, m, staticPrompt("be brief"), "1.2.3"))

	return &fixture{backends: m, router: router, echo: ea, mux: mux}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestChat_EchoFallback(t *testing.T) {
	f := newFixture(t, nil)

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/chat?message=oi", ""},
		{http.MethodPost, "/chat", `{"message":"oi"}`},
	} {
		rec := f.do(tc.method, tc.target, tc.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.method, rec.Code)
		}
		out := decode[providers.RelayOutcome](t, rec)
		if out.Reply != "You said: oi" || out.Provider != "local-echo" || out.Status != providers.StatusEcho {
			t.Errorf("%s: unexpected outcome %+v", tc.method, out)
		}
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	f := newFixture(t, nil)

	for _, target := range []string{"/chat", "/chat?message=%20%20", "/chat?message=&stream=true"} {
		rec := f.do(http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
			continue
		}
		body := decode[types.ErrorResponse](t, rec)
		if body.Error.Param != "message" || body.Error.Code != types.CodeMissingField {
			t.Errorf("%s: unexpected error %+v", target, body.Error)
		}
	}

	if n := f.echo.calls.Load(); n != 0 {
		t.Errorf("backend must not be called, got %d calls", n)
	}
}

func TestChat_UnknownBackend(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/chat?message=oi&backend=nope", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decode[types.ErrorResponse](t, rec); body.Error.Code != types.CodeUnknownBackend {
		t.Errorf("unexpected error %+v", body.Error)
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPut, "/chat?message=oi", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Values("Allow") == nil {
		t.Error("expected Allow header")
	}
}

func ollamaUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			for _, line := range []string{
				`{"response":"Hel","done":false}`,
				`{"response":"lo","done":false}`,
				`{"response":"","done":true,"done_reason":"stop"}`,
			} {
				_, _ = w.Write([]byte(line + "\n"))
				w.(http.Flusher).Flush()
			}
		case "/api/chat":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:0.5b"},{"name":"llama3.2:1b"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChat_StreamEvents(t *testing.T) {
	f := newFixture(t, ollamaUpstream(t))

	rec := f.do(http.MethodGet, "/chat?message=oi&stream=true&backend=remote&format=sse", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	for k, v := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
		"Connection":        "keep-alive",
	} {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: Hel\n\ndata: lo\n\ndata: [DONE]\n\n") {
		t.Errorf("unexpected stream %q", body)
	}
}

func TestChat_StreamLines(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/chat", `{"message":"oi","stream":true}`)
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
	if !strings.HasSuffix(rec.Body.String(), "You said: oi\n") {
		t.Errorf("unexpected stream %q", rec.Body.String())
	}
}

func TestChat_DegradedIsOK(t *testing.T) {
	f := newFixture(t, ollamaUpstream(t))

	rec := f.do(http.MethodGet, "/chat?message=oi&backend=remote", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode[providers.RelayOutcome](t, rec)
	if out.Status != providers.StatusDegraded || out.Provider != "degraded:http:503" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if out.Reply != "[degraded:http:503] You said: oi" {
		t.Errorf("unexpected reply %q", out.Reply)
	}
}

func TestCompletions(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"system","content":"s"},{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[types.ChatCompletionResponse](t, rec)
	if resp.Object != types.ObjectChatCompletion || resp.Model != "llama3.2:1b" {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "You said: hi" {
		t.Errorf("unexpected choices %+v", resp.Choices)
	}
	if resp.SystemFingerprint != "local-echo" {
		t.Errorf("unexpected fingerprint %q", resp.SystemFingerprint)
	}
}

func TestCompletions_Stream(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/chat/completions",
		`{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	body := rec.Body.String()

	if !strings.Contains(body, `"object":"chat.completion.chunk"`) || !strings.Contains(body, `"role":"assistant"`) {
		t.Errorf("missing chunk fields in %q", body)
	}
	if !strings.Contains(body, `"content":"You said: hi"`) || !strings.Contains(body, `"finish_reason":"stop"`) {
		t.Errorf("missing content or finish reason in %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with [DONE]: %q", body)
	}
}

func TestCompletions_Errors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"no text", http.MethodPost, `{"messages":[{"role":"user","content":"  "}]}`, http.StatusBadRequest},
		{"no messages", http.MethodPost, `{"messages":[]}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, `{`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(tt.method, "/v1/chat/completions", tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if n := f.echo.calls.Load(); n != 0 {
		t.Errorf("backend must not be called, got %d calls", n)
	}
}

func TestModels(t *testing.T) {
	f := newFixture(t, ollamaUpstream(t))

	rec := f.do(http.MethodGet, "/models?backend=remote", "")
	models := decode[types.ModelsResponse](t, rec)
	if models.Default != "qwen2.5:0.5b" || len(models.Models) != 2 {
		t.Errorf("unexpected /models %+v", models)
	}

	rec = f.do(http.MethodGet, "/v1/models", "")
	list := decode[types.ModelList](t, rec)
	if list.Object != "list" {
		t.Errorf("unexpected object %q", list.Object)
	}
	owners := map[string]string{}
	for _, e := range list.Data {
		owners[e.ID] = e.OwnedBy
	}
	// "ollama" sorts before "remote", so the shared model belongs to it.
	if owners["llama3.2:1b"] != "ollama" || owners["qwen2.5:0.5b"] != "remote" || len(owners) != 2 {
		t.Errorf("unexpected /v1/models %+v", list.Data)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/health", "")
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Provider != "local-echo" || resp.Model != "llama3.2:1b" || !resp.Backend.Healthy {
		t.Errorf("unexpected /health %+v", resp)
	}
}

func TestConfig(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/config", "")
	raw := rec.Body.String()
	if strings.Contains(raw, "api_key") {
		t.Errorf("/config must not expose secrets: %s", raw)
	}

	resp := decode[ConfigResponse](t, rec)
	if resp.Backend != "ollama" || resp.Model != "llama3.2:1b" || resp.NumCtx != 1024 || !resp.SystemPrompt {
		t.Errorf("unexpected /config %+v", resp)
	}
	if resp.API.Title != "chatrelay" || resp.API.Version != "1.2.3" {
		t.Errorf("unexpected api %+v", resp.API)
	}
}
