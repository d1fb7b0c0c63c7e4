package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

// Adapter talks to an Ollama server over its native HTTP API.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates an Ollama adapter. The base URL must be set; a backend
// without an address is served by the echo adapter instead.
func New(cfg providers.BackendConfig) (*Adapter, error) {
	cfg.BaseURL = providers.NormalizeBaseURL(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: "base URL is required"}
	}
	if err := providers.ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: err.Error()}
	}
	if cfg.Model == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "model", Message: "default model is required"}
	}

	slog.Info("ollama adapter initialized",
		"backend", cfg.Name,
		"base_url", cfg.BaseURL,
		"model", cfg.Model,
	)

	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}, nil
}

// Type implements providers.Adapter.
func (a *Adapter) Type() string {
	return providers.TypeOllama
}

// ListModels implements providers.Adapter using GET /api/tags.
func (a *Adapter) ListModels(ctx context.Context) []providers.ModelID {
	fallback := []providers.ModelID{a.DefaultModel()}

	var tags tagsResponse
	if err := a.DoJSON(ctx, http.MethodGet, "/api/tags", nil, &tags, nil); err != nil {
		slog.WarnContext(ctx, "listing models failed, using default model",
			"backend", a.Name(),
			"error", err,
		)
		return fallback
	}

	models := make([]providers.ModelID, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			models = append(models, providers.ModelID(name))
		}
	}
	if len(models) == 0 {
		return fallback
	}
	return models
}

// CompleteOnce implements providers.Adapter using POST /api/chat with
// streaming disabled.
func (a *Adapter) CompleteOnce(ctx context.Context, prompt string, params providers.Params) (providers.RelayOutcome, error) {
	model := a.model(params)
	body := request{
		Model:     model,
		Messages:  providers.BuildMessages(prompt, params),
		Stream:    false,
		KeepAlive: a.Config().KeepAlive,
		Options:   buildOptions(params),
	}

	var rec record
	if err := a.DoJSON(ctx, http.MethodPost, "/api/chat", body, &rec, nil); err != nil {
		return providers.RelayOutcome{}, err
	}
	if msg := errorText(rec.Error); msg != "" {
		return providers.RelayOutcome{}, &providers.StreamError{Provider: a.Name(), Message: msg}
	}

	text, shape := decodeReply(rec)
	slog.DebugContext(ctx, "ollama reply decoded",
		"backend", a.Name(),
		"model", model,
		"shape", shape.String(),
	)

	if text == "" {
		return providers.RelayOutcome{
			Reply:    providers.EchoReply(prompt),
			Provider: fmt.Sprintf("%s-empty:%s", providers.TypeOllama, model),
			Status:   providers.StatusEmpty,
			Model:    model,
		}, nil
	}

	outcome := providers.RelayOutcome{
		Reply:    text,
		Provider: fmt.Sprintf("%s:chat:%s", providers.TypeOllama, model),
		Status:   providers.StatusOK,
		Model:    model,
	}
	if rec.DoneReason != "" && rec.DoneReason != providers.DoneReasonStop {
		outcome.DoneReason = rec.DoneReason
	}
	return outcome, nil
}

// CompleteStreaming implements providers.Adapter. Requests that carry
// history or retrieved context use /api/chat; plain prompts use
// /api/generate.
func (a *Adapter) CompleteStreaming(ctx context.Context, prompt string, params providers.Params) (<-chan providers.Fragment, error) {
	body := request{
		Model:     a.model(params),
		Stream:    true,
		KeepAlive: a.Config().KeepAlive,
		Options:   buildOptions(params),
	}

	path := "/api/generate"
	if len(params.History) > 0 || len(params.Context) > 0 {
		path = "/api/chat"
		body.Messages = providers.BuildMessages(prompt, params)
	} else {
		body.Prompt = prompt
		body.System = params.SystemPrompt
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.Do(ctx, http.MethodPost, path, payload, map[string]string{"Accept": "application/x-ndjson"})
	if err != nil {
		return nil, err
	}

	return providers.Pump(ctx, a.Name(), newStreamReader(a.Name(), resp.Body), prompt), nil
}

// HealthCheck implements providers.Adapter with HEAD /api/tags.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := a.Probe(ctx, http.MethodHead, "/api/tags", nil)
	a.RecordHealth(err, time.Since(start))
	return err
}

func (a *Adapter) model(params providers.Params) string {
	if params.Model != "" {
		return params.Model
	}
	return a.Config().Model
}

var _ providers.Adapter = (*Adapter)(nil)
