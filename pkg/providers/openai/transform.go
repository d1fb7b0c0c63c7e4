package openai

import (
	"encoding/json"

	"oqs-hq/chatrelay/pkg/providers"
)

// Request is an OpenAI chat completion request.
type Request struct {
	Model       string              `json:"model"`
	Messages    []providers.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
	Stream      bool                `json:"stream"`
}

// Response is an OpenAI chat completion response.
type Response struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []Choice        `json:"choices"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Choice is one completion choice. Text is set by legacy completion
// endpoints that some compatible servers still use.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Text         *string  `json:"text,omitempty"`
	FinishReason string   `json:"finish_reason"`
}

// Message is an assistant message in a response.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamResponse is one chunk of an SSE stream.
type StreamResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []StreamChoice  `json:"choices"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// StreamChoice is a choice inside a stream chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// StreamDelta is the incremental content of a stream chunk.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func buildRequest(model, prompt string, p providers.Params, stream bool) Request {
	return Request{
		Model:       model,
		Messages:    providers.BuildMessages(prompt, p),
		MaxTokens:   p.NumPredict,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Stop:        p.Stop,
		Stream:      stream,
	}
}

// decodeReply extracts the reply text: choices[0].message.content, then
// choices[0].text, otherwise empty.
func decodeReply(r Response) (text, finishReason string) {
	if len(r.Choices) == 0 {
		return "", ""
	}
	c := r.Choices[0]
	if c.Message != nil && c.Message.Content != "" {
		return c.Message.Content, c.FinishReason
	}
	if c.Text != nil && *c.Text != "" {
		return *c.Text, c.FinishReason
	}
	return "", c.FinishReason
}

// errorText returns the message of an OpenAI error object or string.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
