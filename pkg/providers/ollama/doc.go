// Package ollama implements the relay adapter for the Ollama HTTP API.
//
// Endpoints used:
//
//	GET  /api/tags      model listing (name or model field)
//	HEAD /api/tags      health probe, any status below 500 is healthy
//	POST /api/chat      non-streaming replies, and streams that carry history
//	POST /api/generate  streams for plain prompts
//
// Streams are newline-delimited JSON. Each record may carry a response or
// message.content delta, a done flag with an optional done_reason, or an
// error field. Lines that are not valid JSON are skipped.
package ollama
