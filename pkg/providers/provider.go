package providers

import (
	"context"
	"strings"
)

// Adapter is the contract every backend implements. An adapter knows one
// backend's wire protocol and nothing about outbound framing or retries.
//
// Implementations must be safe for concurrent use. Every call opens its own
// upstream connection and releases it before the call (or, for streams, the
// reader goroutine) returns.
type Adapter interface {
	// Name returns the configured backend name (e.g. "ollama").
	Name() string

	// Type returns the adapter type ("ollama", "openai", "echo").
	Type() string

	// DefaultModel returns the configured default model.
	DefaultModel() ModelID

	// ListModels returns the models the backend serves. It never fails:
	// on any error it returns a one-element slice holding DefaultModel.
	ListModels(ctx context.Context) []ModelID

	// CompleteOnce sends a non-streaming request and returns the reply.
	// Returned errors are typed (see errors.go) so callers can classify them.
	CompleteOnce(ctx context.Context, prompt string, params Params) (RelayOutcome, error)

	// CompleteStreaming opens a streaming request. Connection and status
	// failures are returned synchronously. On success the returned channel
	// yields fragments in backend order and ends with exactly one terminal
	// fragment (FragmentDone or FragmentError) before it is closed.
	//
	// The upstream connection is closed when the stream ends or ctx is done.
	CompleteStreaming(ctx context.Context, prompt string, params Params) (<-chan Fragment, error)

	// HealthCheck probes the backend. A nil error means healthy.
	HealthCheck(ctx context.Context) error

	// Health returns the last recorded health status.
	Health() Health

	// Close releases adapter resources.
	Close() error
}

// ContextHeader starts the system message carrying retrieved passages.
const ContextHeader = "[context]"

// BuildMessages assembles the chat message list for a prompt: optional
// system prompt, prior history, retrieved context, then the user prompt.
func BuildMessages(prompt string, params Params) []Message {
	msgs := make([]Message, 0, len(params.History)+3)
	if params.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: params.SystemPrompt})
	}
	msgs = append(msgs, params.History...)
	if len(params.Context) > 0 {
		msgs = append(msgs, Message{
			Role:    RoleSystem,
			Content: ContextHeader + "\n" + strings.Join(params.Context, "\n\n"),
		})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return msgs
}
