// Package relay is the streaming core of chatrelay.
//
// A request is resolved by the Router into a Route (backend, model, output
// budget, system prompt, history) and then served in one of two modes.
//
// Non-streaming requests run the adapter's CompleteOnce under a Controller,
// which retries transient failures with exponential backoff and turns
// anything that still fails into a degraded reply.
//
// Streaming requests are a pipeline of fragment channels:
//
//	adapter.CompleteStreaming -> Controller.Open -> Multiplex -> Pump -> Sink
//
// Controller.Open retries the open phase and degrades on failure, Multiplex
// interposes heartbeats while the backend is silent, and Pump renders each
// fragment with a Framer (plain lines, server-sent events or OpenAI chunks)
// and flushes it to the client. Every stage selects on the request context,
// so a client disconnect or a failed write tears down the whole pipeline and
// closes the upstream connection.
package relay
