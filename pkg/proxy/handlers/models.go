package handlers

import (
	"net/http"

	"oqs-hq/chatrelay/pkg/proxy"
	"oqs-hq/chatrelay/pkg/proxy/types"
)

// ModelsHandler serves /models: the models of one backend (the default, or
// ?backend=name) and its default model. Listing never fails; an unreachable
// backend reports its default model only.
type ModelsHandler struct {
	backends Backends
}

// NewModelsHandler creates a /models handler.
func NewModelsHandler(b Backends) *ModelsHandler {
	return &ModelsHandler{backends: b}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	adapter, _, err := h.backends.Lookup(r.URL.Query().Get("backend"))
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	ids := adapter.ListModels(r.Context())
	resp := types.ModelsResponse{
		Models:  make([]string, 0, len(ids)),
		Default: string(adapter.DefaultModel()),
	}
	for _, id := range ids {
		resp.Models = append(resp.Models, string(id))
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, resp)
}

// OpenAIModelsHandler serves /v1/models with the models of every backend.
// owned_by names the backend; a model served by several backends is listed
// once, under the first backend in name order.
type OpenAIModelsHandler struct {
	backends Backends
}

// NewOpenAIModelsHandler creates a /v1/models handler.
func NewOpenAIModelsHandler(b Backends) *OpenAIModelsHandler {
	return &OpenAIModelsHandler{backends: b}
}

// ServeHTTP implements http.Handler.
func (h *OpenAIModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	list := types.ModelList{Object: types.ObjectList, Data: []types.ModelEntry{}}
	seen := make(map[string]bool)
	for _, name := range h.backends.Names() {
		adapter, _, err := h.backends.Lookup(name)
		if err != nil {
			continue
		}
		for _, id := range adapter.ListModels(r.Context()) {
			if seen[string(id)] {
				continue
			}
			seen[string(id)] = true
			list.Data = append(list.Data, types.ModelEntry{
				ID:      string(id),
				Object:  types.ObjectModel,
				OwnedBy: name,
			})
		}
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, list)
}
