// Package providers defines the backend adapter contract of the relay and the
// shared pieces every adapter uses.
//
// # Overview
//
// An Adapter knows one backend's wire protocol. It turns a prompt plus
// resolved Params into an upstream request and exposes the response either
// as a single RelayOutcome (CompleteOnce) or as a channel of Fragment values
// (CompleteStreaming). Adapters do not retry, frame output or inject
// heartbeats; those concerns live in package relay.
//
// # Streams
//
// A stream is a receive-only channel owned by the adapter's reader
// goroutine. It carries text fragments in backend order and always ends
// with exactly one terminal fragment:
//
//	FragmentDone   normal completion, Reason "stop", "length", "eof", ...
//	FragmentError  degraded completion, Reason "timeout", "server_error", ...
//
// The goroutine closes the upstream response body when it exits, so
// cancelling the context passed to CompleteStreaming always releases the
// upstream connection.
//
// # Errors
//
// Adapters return typed errors (ProviderError, RateLimitError, TimeoutError,
// TransportError, ParseError). IsRetryable and Reason classify them for the
// retry controller:
//
//	if providers.IsRetryable(err) {
//	    // connection error, timeout, HTTP 5xx or HTTP 429
//	}
//	tag := "degraded:" + providers.Reason(err) // e.g. "degraded:http:503"
//
// # HTTP base
//
// HTTPProvider holds the HTTP client shared by HTTP adapters. It disables
// keep-alives so each request owns one connection, and enforces the connect,
// read, write and pool timeouts independently.
package providers
