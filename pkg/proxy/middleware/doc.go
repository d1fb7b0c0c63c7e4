// Package middleware provides HTTP middleware for cross-cutting concerns:
// request IDs, access logging, CORS and panic recovery.
//
// # Middleware Chain
//
// The server applies them in this order (outermost first):
//
//	Recovery -> RequestID -> Tracing -> Logging -> CORS -> router
//
// Tracing (see package tracing) is only installed when enabled.
//
// RequestID runs before Logging so that every access log line carries
// request_id through the logging context handler.
//
// # Streaming
//
// The logging wrapper implements http.Flusher and Unwrap, so handlers that
// stream through http.ResponseController keep flushing and per-write
// deadlines. Requests have no overall deadline; streams are bounded by the
// per-unit write timeout.
package middleware
