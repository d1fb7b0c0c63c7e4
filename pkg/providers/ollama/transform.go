package ollama

import (
	"encoding/json"

	"oqs-hq/chatrelay/pkg/providers"
)

// request is the body of /api/chat and /api/generate.
type request struct {
	Model     string              `json:"model"`
	Messages  []providers.Message `json:"messages,omitempty"`
	Prompt    string              `json:"prompt,omitempty"`
	System    string              `json:"system,omitempty"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
	Options   options             `json:"options"`
}

type options struct {
	NumCtx      int      `json:"num_ctx"`
	NumPredict  int      `json:"num_predict"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// record is one response object: the whole non-streaming reply, or one
// line of an NDJSON stream.
type record struct {
	Model      string          `json:"model"`
	Response   *string         `json:"response"`
	Message    *messageField   `json:"message"`
	Done       bool            `json:"done"`
	DoneReason string          `json:"done_reason"`
	Error      json.RawMessage `json:"error"`
}

type messageField struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// replyShape names which field of a record carried the reply text.
type replyShape int

const (
	shapeNone replyShape = iota
	shapeMessage
	shapeFlat
)

func (s replyShape) String() string {
	switch s {
	case shapeMessage:
		return "message"
	case shapeFlat:
		return "response"
	default:
		return "none"
	}
}

// decodeReply extracts reply text with a fixed precedence: message.content,
// then response, otherwise empty. The text is returned verbatim.
func decodeReply(r record) (string, replyShape) {
	if r.Message != nil && r.Message.Content != "" {
		return r.Message.Content, shapeMessage
	}
	if r.Response != nil && *r.Response != "" {
		return *r.Response, shapeFlat
	}
	return "", shapeNone
}

// decodeDelta extracts the incremental text of a stream record with the
// same precedence as decodeReply. Whitespace is significant in deltas.
func decodeDelta(r record) string {
	if r.Message != nil && r.Message.Content != "" {
		return r.Message.Content
	}
	if r.Response != nil {
		return *r.Response
	}
	return ""
}

// errorText returns the upstream error message, which Ollama sends either
// as a string or as an object with a message field.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func buildOptions(p providers.Params) options {
	return options{
		NumCtx:      p.NumCtx,
		NumPredict:  p.NumPredict,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Stop:        p.Stop,
	}
}
