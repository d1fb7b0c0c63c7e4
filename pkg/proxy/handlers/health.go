package handlers

import (
	"net/http"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/proxy"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status   string           `json:"status"`
	Model    string           `json:"model"`
	Provider string           `json:"provider"`
	Backend  providers.Health `json:"backend"`
}

// HealthHandler serves /health. It reports the default backend from its
// last recorded probe and always answers 200 while the process runs; use
// /ready for traffic decisions.
type HealthHandler struct {
	backends Backends
}

// NewHealthHandler creates a /health handler.
func NewHealthHandler(b Backends) *HealthHandler {
	return &HealthHandler{backends: b}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	resp := HealthResponse{Status: "ok"}
	if adapter, _, err := h.backends.Lookup(""); err == nil {
		resp.Model = string(adapter.DefaultModel())
		resp.Provider = adapter.Type()
		if resp.Provider == providers.TypeEcho {
			resp.Provider = providers.EchoProvider
		}
		resp.Backend = adapter.Health()
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, resp)
}

// ConfigResponse is the /config body. It never carries secrets.
type ConfigResponse struct {
	Base         string    `json:"base"`
	Model        string    `json:"model"`
	NumCtx       int       `json:"num_ctx"`
	NumPredict   int       `json:"num_predict"`
	SystemPrompt bool      `json:"system_prompt"`
	Backend      string    `json:"backend"`
	Backends     []string  `json:"backends"`
	API          APIConfig `json:"api"`
}

// APIConfig describes the service.
type APIConfig struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// ConfigHandler serves /config: the effective settings of the default
// backend and whether a system prompt is set.
type ConfigHandler struct {
	cfg      *config.Config
	backends Backends
	prompts  PromptSource
	version  string
}

// NewConfigHandler creates a /config handler. prompts may be nil.
func NewConfigHandler(cfg *config.Config, b Backends, prompts PromptSource, version string) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, backends: b, prompts: prompts, version: version}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	name := h.backends.DefaultName()
	_, backend, _ := h.backends.Lookup(name)

	version := h.cfg.Server.API.Version
	if version == "" {
		version = h.version
	}

	resp := ConfigResponse{
		Base:       backend.BaseURL,
		Model:      backend.Model,
		NumCtx:     backend.NumCtx,
		NumPredict: backend.NumPredict,
		Backend:    name,
		Backends:   h.backends.Names(),
		API:        APIConfig{Title: h.cfg.Server.API.Title, Version: version},
	}
	if h.prompts != nil {
		resp.SystemPrompt = h.prompts.SystemPrompt() != ""
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, resp)
}
