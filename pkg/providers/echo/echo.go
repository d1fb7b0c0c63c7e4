// Package echo implements the local fallback adapter used when a backend
// has no address configured. It answers every prompt with "You said: ...".
package echo

import (
	"context"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

// Adapter echoes prompts back without any network I/O.
type Adapter struct {
	name  string
	model string
}

// New creates an echo adapter that reports name and model.
func New(name, model string) *Adapter {
	return &Adapter{name: name, model: model}
}

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return a.name }

// Type implements providers.Adapter.
func (a *Adapter) Type() string { return providers.TypeEcho }

// DefaultModel implements providers.Adapter.
func (a *Adapter) DefaultModel() providers.ModelID { return providers.ModelID(a.model) }

// ListModels implements providers.Adapter.
func (a *Adapter) ListModels(context.Context) []providers.ModelID {
	return []providers.ModelID{a.DefaultModel()}
}

// CompleteOnce implements providers.Adapter.
func (a *Adapter) CompleteOnce(_ context.Context, prompt string, params providers.Params) (providers.RelayOutcome, error) {
	model := params.Model
	if model == "" {
		model = a.model
	}
	return providers.RelayOutcome{
		Reply:    providers.EchoReply(prompt),
		Provider: providers.EchoProvider,
		Status:   providers.StatusEcho,
		Model:    model,
	}, nil
}

// CompleteStreaming implements providers.Adapter. The stream holds the
// echo reply followed by a normal terminal marker.
func (a *Adapter) CompleteStreaming(ctx context.Context, prompt string, _ providers.Params) (<-chan providers.Fragment, error) {
	out := make(chan providers.Fragment)
	go func() {
		defer close(out)
		for _, f := range []providers.Fragment{
			providers.TextFragment(providers.EchoReply(prompt)),
			providers.DoneFragment(providers.DoneReasonStop),
		} {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck implements providers.Adapter. Echo is always healthy.
func (a *Adapter) HealthCheck(context.Context) error { return nil }

// Health implements providers.Adapter.
func (a *Adapter) Health() providers.Health {
	return providers.Health{Healthy: true, LastCheck: time.Now()}
}

// Close implements providers.Adapter.
func (a *Adapter) Close() error { return nil }

var _ providers.Adapter = (*Adapter)(nil)
