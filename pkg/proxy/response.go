package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/proxy/types"
	"oqs-hq/chatrelay/pkg/relay"
)

// FormatChatCompletion renders a relay outcome as an OpenAI chat.completion.
// Degraded outcomes are ordinary completions whose content is the degraded
// text; the provenance tag travels in system_fingerprint.
func FormatChatCompletion(out providers.RelayOutcome, model string) *types.ChatCompletionResponse {
	if out.Model != "" {
		model = out.Model
	}
	finish := providers.DoneReasonStop
	if out.DoneReason != "" && out.DoneReason != providers.DoneReasonEOF {
		finish = out.DoneReason
	}

	return &types.ChatCompletionResponse{
		ID:      relay.NewCompletionID(),
		Object:  types.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.ReplyMessage{Role: providers.RoleAssistant, Content: out.Reply},
			FinishReason: finish,
		}},
		SystemFingerprint: out.Provider,
	}
}

// WriteJSONResponse writes a JSON response to the HTTP response writer.
// It sets the appropriate content-type header and handles marshaling errors.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes an error envelope with the status code derived
// from its type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetStreamHeaders prepares w for an incremental response. Proxies are asked
// not to buffer and clients not to cache.
func SetStreamHeaders(w http.ResponseWriter, contentType string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Connection", "keep-alive")
}
