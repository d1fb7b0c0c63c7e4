package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChatBody is the JSON body accepted by /chat. Every field except Message
// is optional; the same names are accepted as query parameters.
type ChatBody struct {
	Message      string   `json:"message"`
	Stream       FlexBool `json:"stream"`
	Model        string   `json:"model,omitempty"`
	NumPredict   *int     `json:"num_predict,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	Stop         StopList `json:"stop,omitempty"`
	Backend      string   `json:"backend,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	Format       string   `json:"format,omitempty"`
	Namespace    string   `json:"namespace,omitempty"`
}

// FlexBool decodes a JSON boolean, a quoted boolean ("true", "1", "yes")
// or null (false).
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*b = false
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, ok := ParseBool(s)
	if !ok {
		return fmt.Errorf("invalid boolean %s", string(data))
	}
	*b = FlexBool(v)
	return nil
}

// ParseBool parses the boolean spellings accepted in queries and bodies.
// An empty string is false.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "", "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// StopList decodes either a single stop string or an array of strings.
type StopList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StopList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StopList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings")
	}
	*s = many
	return nil
}

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	// Model is the requested model. Empty selects the backend default.
	Model string `json:"model"`

	// Messages is the conversation so far.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens limits the generated tokens; mapped to num_predict.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// Stream selects server-sent chunks.
	Stream bool `json:"stream,omitempty"`

	// Stop lists stop sequences.
	Stop StopList `json:"stop,omitempty"`

	// User is an end-user identifier, used as the session key when present.
	User string `json:"user,omitempty"`

	// Namespace selects the retrieval namespace. Not part of the OpenAI
	// schema; clients that do not send it get the default namespace.
	Namespace string `json:"namespace,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is one of "system", "user", "assistant" (others are ignored).
	Role string `json:"role"`

	// Content is a string or an array of content parts.
	Content any `json:"content"`

	// Name is an optional author name.
	Name string `json:"name,omitempty"`
}

// Text returns the textual content of the message. For multi-part content
// the text parts are joined with newlines; other part types are ignored.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, p := range c {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := part["type"].(string); t != "" && t != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// Validate checks field ranges. It does not require a model: an empty model
// selects the backend default.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{
			Field:   "messages",
			Message: "messages must contain at least one message",
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{
			Field:   "temperature",
			Message: "temperature must be between 0.0 and 2.0",
		}
	}

	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{
			Field:   "top_p",
			Message: "top_p must be between 0.0 and 1.0",
		}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{
			Field:   "max_tokens",
			Message: "max_tokens must be greater than 0",
		}
	}

	if len(r.Stop) > 4 {
		return &ValidationError{
			Field:   "stop",
			Message: "stop sequences must not exceed 4",
		}
	}

	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "message role is required",
			}
		}
	}

	return nil
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
