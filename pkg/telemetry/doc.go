// Package telemetry groups the observability packages of chatrelay.
//
//   - logging: slog setup, context fields (request, session, client, trace)
//     and secret redaction
//   - metrics: Prometheus collectors for requests, streams, heartbeats,
//     retries, degradations, sessions and the ledger
//   - tracing: OpenTelemetry spans for HTTP requests and relayed chats,
//     exported over OTLP/gRPC
//   - health: scheduled backend probes and the /ready endpoint
//
// Every component accepts a nil receiver or a disabled configuration, so
// callers never branch on whether telemetry is turned on.
package telemetry
