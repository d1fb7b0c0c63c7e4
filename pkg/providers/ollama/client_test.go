package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

func newTestAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	a, err := New(providers.BackendConfig{
		Name:           "ollama",
		Type:           providers.TypeOllama,
		BaseURL:        url,
		Model:          "llama3.2:1b",
		NumCtx:         1024,
		NumPredict:     128,
		KeepAlive:      "30m",
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   time.Second,
		PoolTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func collect(t *testing.T, ch <-chan providers.Fragment) []providers.Fragment {
	t.Helper()
	var out []providers.Fragment
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(providers.BackendConfig{Name: "ollama", Model: "m"}); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := New(providers.BackendConfig{Name: "ollama", BaseURL: "localhost:11434"}); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"},{"model":"qwen2:0.5b"},{}]}`))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	models := a.ListModels(context.Background())

	want := []providers.ModelID{"llama3.2:1b", "qwen2:0.5b"}
	if len(models) != len(want) {
		t.Fatalf("expected %d models, got %v", len(want), models)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("model %d: expected %q, got %q", i, want[i], models[i])
		}
	}
}

func TestListModels_FailsSoft(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("nope")) }},
		{"empty list", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"models":[]}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			models := newTestAdapter(t, server.URL).ListModels(context.Background())
			if len(models) != 1 || models[0] != "llama3.2:1b" {
				t.Errorf("expected default model only, got %v", models)
			}
		})
	}
}

func TestCompleteOnce(t *testing.T) {
	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"llama3.2:1b","message":{"role":"assistant","content":" hello "},"done":true,"done_reason":"stop"}`))
	}))
	defer server.Close()

	temp := 0.2
	a := newTestAdapter(t, server.URL)
	out, err := a.CompleteOnce(context.Background(), "oi", providers.Params{
		NumCtx:       1024,
		NumPredict:   64,
		SystemPrompt: "be brief",
		Temperature:  &temp,
	})
	if err != nil {
		t.Fatalf("CompleteOnce() failed: %v", err)
	}

	if out.Reply != "hello" {
		t.Errorf("expected reply %q, got %q", "hello", out.Reply)
	}
	if out.Provider != "ollama:chat:llama3.2:1b" {
		t.Errorf("unexpected provider %q", out.Provider)
	}
	if out.Status != providers.StatusOK {
		t.Errorf("expected status ok, got %s", out.Status)
	}

	if got.Stream {
		t.Error("expected stream:false")
	}
	if got.KeepAlive != "30m" {
		t.Errorf("expected keep_alive 30m, got %q", got.KeepAlive)
	}
	if got.Options.NumPredict != 64 || got.Options.NumCtx != 1024 {
		t.Errorf("unexpected options %+v", got.Options)
	}
	if got.Options.Temperature == nil || *got.Options.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got.Options.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "oi" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteOnce_ResponseShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		reply    string
		provider string
		status   providers.Status
	}{
		{"message wins", `{"message":{"content":"A"},"response":"B"}`, "A", "ollama:chat:llama3.2:1b", providers.StatusOK},
		{"flat fallback", `{"message":{"content":""},"response":"B"}`, "B", "ollama:chat:llama3.2:1b", providers.StatusOK},
		{"kept verbatim", `{"message":{"content":"  A\n"}}`, "  A\n", "ollama:chat:llama3.2:1b", providers.StatusOK},
		{"empty", `{"done":true}`, "You said: oi", "ollama-empty:llama3.2:1b", providers.StatusEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			out, err := newTestAdapter(t, server.URL).CompleteOnce(context.Background(), "oi", providers.Params{})
			if err != nil {
				t.Fatalf("CompleteOnce() failed: %v", err)
			}
			if out.Reply != tt.reply || out.Provider != tt.provider || out.Status != tt.status {
				t.Errorf("got %+v", out)
			}
		})
	}
}

func TestCompleteOnce_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).CompleteOnce(context.Background(), "oi", providers.Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := providers.Reason(err); got != "http:503" {
		t.Errorf("expected reason http:503, got %q", got)
	}
}

func TestCompleteStreaming(t *testing.T) {
	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("expected /api/generate, got %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		flusher := w.(http.Flusher)
		lines := []string{
			`{"response":"Hel","done":false}`,
			`not json at all`,
			``,
			`{"response":"lo","done":false}`,
			`{"response":"","done":true,"done_reason":"length"}`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	ch, err := a.CompleteStreaming(context.Background(), "oi", providers.Params{SystemPrompt: "sys"})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	frags := collect(t, ch)

	want := []providers.Fragment{
		providers.TextFragment("Hel"),
		providers.TextFragment("lo"),
		providers.DoneFragment("length"),
	}
	if len(frags) != len(want) {
		t.Fatalf("expected %d fragments, got %+v", len(want), frags)
	}
	for i := range want {
		if frags[i] != want[i] {
			t.Errorf("fragment %d: expected %+v, got %+v", i, want[i], frags[i])
		}
	}

	if !got.Stream || got.Prompt != "oi" || got.System != "sys" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestCompleteStreaming_HistoryUsesChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"again"},"done":true}` + "\n"))
	}))
	defer server.Close()

	ch, err := newTestAdapter(t, server.URL).CompleteStreaming(context.Background(), "oi", providers.Params{
		History: []providers.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	frags := collect(t, ch)

	if len(frags) != 2 || frags[0].Text != "again" || frags[1].Kind != providers.FragmentDone {
		t.Errorf("unexpected fragments %+v", frags)
	}
}

func TestCompleteStreaming_ContextUsesChat(t *testing.T) {
	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"grounded"},"done":true}` + "\n"))
	}))
	defer server.Close()

	ch, err := newTestAdapter(t, server.URL).CompleteStreaming(context.Background(), "oi", providers.Params{
		SystemPrompt: "be brief",
		Context:      []string{"passage one", "passage two"},
	})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	frags := collect(t, ch)

	if len(frags) != 2 || frags[0].Text != "grounded" {
		t.Errorf("unexpected fragments %+v", frags)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", got.Messages)
	}
	if got.Messages[1].Role != "system" || got.Messages[1].Content != "[context]\npassage one\n\npassage two" {
		t.Errorf("unexpected context message %+v", got.Messages[1])
	}
}

func TestCompleteStreaming_ErrorRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"par","done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"model crashed"}` + "\n"))
		_, _ = w.Write([]byte(`{"response":"never","done":false}` + "\n"))
	}))
	defer server.Close()

	ch, err := newTestAdapter(t, server.URL).CompleteStreaming(context.Background(), "oi", providers.Params{})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	frags := collect(t, ch)

	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %+v", frags)
	}
	last := frags[1]
	if last.Kind != providers.FragmentError || last.Reason != "server_error" {
		t.Errorf("expected server_error marker, got %+v", last)
	}
	if last.Text != "[degraded:server_error] model crashed" {
		t.Errorf("unexpected error text %q", last.Text)
	}
}

func TestCompleteStreaming_EOFWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"cut"}` + "\n"))
	}))
	defer server.Close()

	ch, err := newTestAdapter(t, server.URL).CompleteStreaming(context.Background(), "oi", providers.Params{})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	frags := collect(t, ch)

	if len(frags) != 2 || frags[1] != providers.DoneFragment(providers.DoneReasonEOF) {
		t.Errorf("unexpected fragments %+v", frags)
	}
}

func TestCompleteStreaming_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).CompleteStreaming(context.Background(), "oi", providers.Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if providers.IsRetryable(err) {
		t.Error("404 must be terminal")
	}
}

func TestCompleteStreaming_CancelClosesUpstream(t *testing.T) {
	closed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"a"}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(closed)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newTestAdapter(t, server.URL).CompleteStreaming(ctx, "oi", providers.Params{})
	if err != nil {
		t.Fatalf("CompleteStreaming() failed: %v", err)
	}
	if f := <-ch; f.Text != "a" {
		t.Fatalf("unexpected first fragment %+v", f)
	}
	cancel()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection was not closed after cancellation")
	}
	for range ch {
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || !strings.HasSuffix(r.URL.Path, "/api/tags") {
			t.Errorf("unexpected probe %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() failed: %v", err)
	}
	if !a.Health().Healthy {
		t.Error("expected healthy status")
	}
}
