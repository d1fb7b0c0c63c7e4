package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrBackend    = attribute.Key("chatrelay.backend")
	AttrModel      = attribute.Key("chatrelay.model")
	AttrMode       = attribute.Key("chatrelay.mode")
	AttrSession    = attribute.Key("chatrelay.session_id")
	AttrStatus     = attribute.Key("chatrelay.status")
	AttrProvider   = attribute.Key("chatrelay.provider")
	AttrDoneReason = attribute.Key("chatrelay.done_reason")
	AttrFragments  = attribute.Key("chatrelay.fragments")
	AttrHeartbeats = attribute.Key("chatrelay.heartbeats")
	AttrAttempts   = attribute.Key("chatrelay.attempts")
)

// Outcome is the terminal state of a relayed request as recorded on its span.
type Outcome struct {
	Status     string
	Provider   string
	DoneReason string
	Fragments  int
	Heartbeats int
	Attempts   int

	// Degraded marks the span failed with Reason as its description.
	Degraded bool
	Reason   string
}

// RouteAttributes returns the attributes of a resolved request.
func RouteAttributes(backend, model, mode, sessionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrBackend.String(backend),
		AttrModel.String(model),
		AttrMode.String(mode),
	}
	if sessionID != "" {
		attrs = append(attrs, AttrSession.String(sessionID))
	}
	return attrs
}

// SetOutcome records o on span.
func SetOutcome(span trace.Span, o Outcome) {
	attrs := []attribute.KeyValue{
		AttrStatus.String(o.Status),
		AttrProvider.String(o.Provider),
		AttrAttempts.Int(o.Attempts),
	}
	if o.DoneReason != "" {
		attrs = append(attrs, AttrDoneReason.String(o.DoneReason))
	}
	if o.Fragments > 0 || o.Heartbeats > 0 {
		attrs = append(attrs, AttrFragments.Int(o.Fragments), AttrHeartbeats.Int(o.Heartbeats))
	}
	span.SetAttributes(attrs...)

	if o.Degraded {
		span.SetStatus(codes.Error, o.Reason)
	}
}
