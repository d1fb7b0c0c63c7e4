// Package tracing provides OpenTelemetry distributed tracing for chatrelay.
//
// When telemetry.tracing.enabled is set, spans are exported over OTLP gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "otel-collector:4317"
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Every inbound request gets a server span from HTTPMiddleware, continuing
// the caller's trace when a traceparent header is present. The relay router
// adds one child span per relayed request ("relay.complete" or
// "relay.stream") carrying the backend, model, status, provenance and
// fragment counts. Upstream calls carry the trace context in their
// traceparent header, so a tracing-aware backend joins the same trace.
//
// Prompts and replies are never recorded on spans.
//
// A nil or disabled *Tracer starts no-op spans.
package tracing
