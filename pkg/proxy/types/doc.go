// Package types defines the wire types of the gateway's HTTP surface.
//
// Request types:
//   - ChatBody: JSON body of /chat (the same names work as query parameters)
//   - ChatCompletionRequest, Message: body of /v1/chat/completions
//
// Response types:
//   - ChatCompletionResponse, ChatCompletionStreamChunk: OpenAI-compatible replies
//   - ModelList, ModelsResponse: /v1/models and /models
//   - ErrorResponse: every error body, {"error":{"message","type","param","code"}}
//
// The /chat reply body is providers.RelayOutcome encoded as JSON.
package types
