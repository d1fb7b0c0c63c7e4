package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"oqs-hq/chatrelay/pkg/proxy"
	"oqs-hq/chatrelay/pkg/proxy/types"
	"oqs-hq/chatrelay/pkg/relay"
)

// ChatOptions configures the chat handlers.
type ChatOptions struct {
	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	// WriteTimeout bounds every streamed unit written to the client.
	WriteTimeout time.Duration
}

// ChatHandler serves /chat (GET and POST).
type ChatHandler struct {
	relay Relay
	opts  ChatOptions
}

// NewChatHandler creates a /chat handler.
func NewChatHandler(r Relay, opts ChatOptions) *ChatHandler {
	return &ChatHandler{relay: r, opts: opts}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	in, err := proxy.ParseChatRequest(r, h.opts.MaxBodyBytes)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	route, err := h.relay.Resolve(in.Request)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}
	if route.SessionID != "" {
		w.Header().Set(proxy.SessionIDHeader, route.SessionID)
	}

	if !route.Stream {
		out := h.relay.Complete(r.Context(), route)
		if err := proxy.WriteJSONResponse(w, http.StatusOK, out); err != nil {
			slog.DebugContext(r.Context(), "failed to write chat reply", "error", err)
		}
		return
	}

	stream(w, r, h.relay, route, in.Framer(), h.opts.WriteTimeout)
}

// stream writes the framed stream of route to w. Write failures only end
// the stream: headers are already sent, so nothing else can be reported.
func stream(w http.ResponseWriter, r *http.Request, rl Relay, route *relay.Route, framer relay.Framer, writeTimeout time.Duration) {
	proxy.SetStreamHeaders(w, framer.ContentType())
	w.WriteHeader(http.StatusOK)

	stats, err := rl.Stream(r.Context(), route, relay.NewHTTPSink(w, writeTimeout), framer)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.DebugContext(r.Context(), "stream ended early",
			"backend", route.Backend,
			"fragments", stats.Fragments,
			"error", err,
		)
	}
}

// methodNotAllowed answers 405 with the allowed methods.
func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(
		"method not allowed", types.ErrorTypeMethodNotAllowed, "", "",
	))
}
