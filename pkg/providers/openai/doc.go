// Package openai implements the relay adapter for hosted OpenAI-compatible
// chat completion APIs.
//
// The adapter uses POST {base}/chat/completions for replies and streams,
// and GET {base}/models for model listing and health probes. Streams are
// Server-Sent Events: each "data:" line holds one chunk and "data: [DONE]"
// ends the stream. Chunks that fail to decode are skipped.
package openai
