package handlers

import (
	"context"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/relay"
)

// Relay runs resolved chat requests. *relay.Router implements it.
type Relay interface {
	Resolve(req providers.ChatRequest) (*relay.Route, error)
	Complete(ctx context.Context, route *relay.Route) providers.RelayOutcome
	Stream(ctx context.Context, route *relay.Route, sink relay.Sink, framer relay.Framer) (relay.Stats, error)
}

// Backends gives handlers read access to the configured adapters.
// *providerfactory.Manager implements it.
type Backends interface {
	Lookup(name string) (providers.Adapter, providers.BackendConfig, error)
	DefaultName() string
	Names() []string
}

// PromptSource reports the current process-wide system prompt.
type PromptSource interface {
	SystemPrompt() string
}
