package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"oqs-hq/chatrelay/pkg/proxy"
	"oqs-hq/chatrelay/pkg/relay"
)

// CompletionsHandler serves the OpenAI-compatible /v1/chat/completions.
// Degraded outcomes are answered with status 200 like any other completion.
type CompletionsHandler struct {
	relay Relay
	opts  ChatOptions
}

// NewCompletionsHandler creates a /v1/chat/completions handler.
func NewCompletionsHandler(r Relay, opts ChatOptions) *CompletionsHandler {
	return &CompletionsHandler{relay: r, opts: opts}
}

// ServeHTTP implements http.Handler.
func (h *CompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	req, err := proxy.ParseChatCompletionRequest(r, h.opts.MaxBodyBytes)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(proxy.SessionIDHeader))
	if sessionID == "" {
		sessionID = req.User
	}

	route, err := h.relay.Resolve(proxy.ToChatRequest(req, sessionID))
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	if route.Stream {
		stream(w, r, h.relay, route, relay.NewChunkFramer(route.Params.Model), h.opts.WriteTimeout)
		return
	}

	out := h.relay.Complete(r.Context(), route)
	if err := proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatChatCompletion(out, route.Params.Model)); err != nil {
		slog.DebugContext(r.Context(), "failed to write completion", "error", err)
	}
}
