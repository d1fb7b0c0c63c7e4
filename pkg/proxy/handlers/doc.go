// Package handlers implements the HTTP endpoints of the gateway.
//
// Chat:
//
//	GET|POST /chat                 one reply as JSON, or a stream (stream=true)
//	POST     /v1/chat/completions  OpenAI-compatible completions and chunk streams
//
// Discovery and status:
//
//	GET /models     models of one backend and its default model
//	GET /v1/models  OpenAI-style model list across backends
//	GET /health     default backend model, provider and last probe
//	GET /config     effective settings, without secrets
//
// /ready, /version and /metrics are served by the telemetry packages.
//
// Non-streaming /chat replies have the shape
//
//	{"reply": "...", "provider": "ollama:chat:llama3.2:1b", "status": "ok", "model": "llama3.2:1b"}
//
// Upstream failures never produce error statuses on the chat endpoints; the
// reply is degraded ("[degraded:timeout] You said: ...") and answered with
// 200. Client input errors answer 400 before any backend is contacted.
//
// Streams set Cache-Control: no-cache, X-Accel-Buffering: no and
// Connection: keep-alive, then write one flushed unit per fragment.
package handlers
