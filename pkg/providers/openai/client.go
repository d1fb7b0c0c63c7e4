package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

// Adapter talks to a hosted OpenAI-compatible chat completion API.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates an OpenAI-compatible adapter. BaseURL is the API root,
// e.g. "https://api.openai.com/v1".
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

	slog.Info("openai adapter initialized",
		"backend", cfg.Name,
		"base_url", cfg.BaseURL,
		"model", cfg.Model,
		"has_api_key", cfg.APIKey != "",
	)

	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}, nil
}

// Type implements providers.Adapter.
func (a *Adapter) Type() string {
	return providers.TypeOpenAI
}

// ListModels implements providers.Adapter using GET /models.
func (a *Adapter) ListModels(ctx context.Context) []providers.ModelID {
	var resp modelsResponse
	if err := a.DoJSON(ctx, http.MethodGet, "/models", nil, &resp, a.headers()); err != nil {
		slog.WarnContext(ctx, "listing models failed, using default model",
			"backend", a.Name(),
			"error", err,
		)
		return []providers.ModelID{a.DefaultModel()}
	}

	models := make([]providers.ModelID, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			models = append(models, providers.ModelID(m.ID))
		}
	}
	if len(models) == 0 {
		return []providers.ModelID{a.DefaultModel()}
	}
	return models
}

// CompleteOnce implements providers.Adapter.
func (a *Adapter) CompleteOnce(ctx context.Context, prompt string, params providers.Params) (providers.RelayOutcome, error) {
	model := a.model(params)

	var resp Response
	if err := a.DoJSON(ctx, http.MethodPost, "/chat/completions", buildRequest(model, prompt, params, false), &resp, a.headers()); err != nil {
		return providers.RelayOutcome{}, err
	}
	if msg := errorText(resp.Error); msg != "" {
		return providers.RelayOutcome{}, &providers.StreamError{Provider: a.Name(), Message: msg}
	}

	text, finish := decodeReply(resp)
	if text == "" {
		return providers.RelayOutcome{
			Reply:    providers.EchoReply(prompt),
			Provider: fmt.Sprintf("%s-empty:%s", providers.TypeOpenAI, model),
			Status:   providers.StatusEmpty,
			Model:    model,
		}, nil
	}

	outcome := providers.RelayOutcome{
		Reply:    text,
		Provider: fmt.Sprintf("%s:chat:%s", providers.TypeOpenAI, model),
		Status:   providers.StatusOK,
		Model:    model,
	}
	if finish != "" && finish != providers.DoneReasonStop {
		outcome.DoneReason = finish
	}
	return outcome, nil
}

// CompleteStreaming implements providers.Adapter.
func (a *Adapter) CompleteStreaming(ctx context.Context, prompt string, params providers.Params) (<-chan providers.Fragment, error) {
	payload, err := json.Marshal(buildRequest(a.model(params), prompt, params, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := a.headers()
	headers["Accept"] = "text/event-stream"

	resp, err := a.Do(ctx, http.MethodPost, "/chat/completions", payload, headers)
	if err != nil {
		return nil, err
	}

	return providers.Pump(ctx, a.Name(), newStreamReader(a.Name(), resp.Body), prompt), nil
}

// HealthCheck implements providers.Adapter with GET /models.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := a.Probe(ctx, http.MethodGet, "/models", a.headers())
	a.RecordHealth(err, time.Since(start))
	return err
}

func (a *Adapter) headers() map[string]string {
	h := map[string]string{}
	if key := a.Config().APIKey; key != "" {
		h["Authorization"] = "Bearer " + key
	}
	return h
}

func (a *Adapter) model(params providers.Params) string {
	if params.Model != "" {
		return params.Model
	}
	return a.Config().Model
}

var _ providers.Adapter = (*Adapter)(nil)
