package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/proxy/types"
	"oqs-hq/chatrelay/pkg/relay"
)

const (
	// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
	DefaultMaxBodyBytes = 1 << 20

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"

	// SessionIDHeader carries the conversation session identifier.
	SessionIDHeader = "X-Session-ID"
)

// Stream output formats accepted by /chat.
const (
	FormatLines = "lines"
	FormatSSE   = "sse"
	FormatEvent = "event"
)

// RequestError is a client-input error raised while parsing a request.
type RequestError struct {
	Field   string
	Message string
	Code    string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ToErrorResponse converts the error to the gateway error envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Field, e.Code)
}

// ChatInput is a parsed /chat request.
type ChatInput struct {
	Request providers.ChatRequest

	// Format is the requested stream format ("lines", "sse" or "event").
	Format string

	// Accept is the Accept header of the request.
	Accept string
}

// Framer returns the stream framer selected by the format parameter or,
// when none was given, by the Accept header.
func (in ChatInput) Framer() relay.Framer {
	switch strings.ToLower(in.Format) {
	case FormatSSE, FormatEvent:
		return relay.EventFramer{}
	case FormatLines:
		return relay.LineFramer{}
	}
	if acceptsEventStream(in.Accept) {
		return relay.EventFramer{}
	}
	return relay.LineFramer{}
}

func acceptsEventStream(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/event-stream" {
			return true
		}
	}
	return false
}

// ParseChatRequest reads a /chat request. Query parameters are read first;
// a JSON or form body overrides them field by field. The session identifier
// falls back to the X-Session-ID header. The message is not validated here:
// an empty message is rejected by the router before any backend is called.
func ParseChatRequest(r *http.Request, maxBodyBytes int64) (*ChatInput, error) {
	body := types.ChatBody{}
	if err := decodeValues(r.URL.Query(), &body); err != nil {
		return nil, err
	}

	if r.Method == http.MethodPost && r.Body != nil {
		if err := decodeBody(r, maxBodyBytes, &body); err != nil {
			return nil, err
		}
	}

	sessionID := strings.TrimSpace(body.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(SessionIDHeader))
	}

	if body.NumPredict != nil && *body.NumPredict < 0 {
		return nil, &RequestError{Field: "num_predict", Message: "num_predict must be non-negative", Code: types.CodeInvalidValue}
	}

	return &ChatInput{
		Request: providers.ChatRequest{
			Message:      body.Message,
			Model:        body.Model,
			NumPredict:   body.NumPredict,
			Stream:       bool(body.Stream),
			SystemPrompt: body.SystemPrompt,
			Temperature:  body.Temperature,
			TopP:         body.TopP,
			Stop:         body.Stop,
			Backend:      body.Backend,
			SessionID:    sessionID,
			Namespace:    strings.TrimSpace(body.Namespace),
		},
		Format: body.Format,
		Accept: r.Header.Get("Accept"),
	}, nil
}

func decodeBody(r *http.Request, maxBodyBytes int64, dst *types.ChatBody) error {
	data, err := readBody(r, maxBodyBytes)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return &RequestError{Message: "invalid form body", Code: types.CodeInvalidValue}
		}
		return decodeValues(values, dst)
	}

	// JSON fields present in the body replace query values.
	if err := json.Unmarshal(data, dst); err != nil {
		return &RequestError{Message: fmt.Sprintf("invalid JSON: %v", err), Code: types.CodeInvalidJSON}
	}
	return nil
}

// readBody reads at most maxBodyBytes of the request body.
func readBody(r *http.Request, maxBodyBytes int64) ([]byte, error) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(data)) > maxBodyBytes {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBodyBytes),
			Code:    types.CodeRequestTooLarge,
		}
	}
	return data, nil
}

// decodeValues copies the recognized parameters of values into dst.
func decodeValues(values url.Values, dst *types.ChatBody) error {
	if v, ok := lookup(values, "message"); ok {
		dst.Message = v
	}
	if v, ok := lookup(values, "stream"); ok {
		b, valid := types.ParseBool(v)
		if !valid {
			return &RequestError{Field: "stream", Message: fmt.Sprintf("invalid boolean %q", v), Code: types.CodeInvalidValue}
		}
		dst.Stream = types.FlexBool(b)
	}
	if v, ok := lookup(values, "model"); ok {
		dst.Model = v
	}
	if v, ok := lookup(values, "num_predict"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &RequestError{Field: "num_predict", Message: fmt.Sprintf("invalid integer %q", v), Code: types.CodeInvalidValue}
		}
		dst.NumPredict = &n
	}
	if v, ok := lookup(values, "system_prompt"); ok {
		dst.SystemPrompt = v
	}
	for _, name := range []string{"temperature", "top_p"} {
		v, ok := lookup(values, name)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &RequestError{Field: name, Message: fmt.Sprintf("invalid number %q", v), Code: types.CodeInvalidValue}
		}
		if name == "temperature" {
			dst.Temperature = &f
		} else {
			dst.TopP = &f
		}
	}
	if stops, ok := values["stop"]; ok {
		dst.Stop = nil
		for _, s := range stops {
			if s != "" {
				dst.Stop = append(dst.Stop, s)
			}
		}
	}
	if v, ok := lookup(values, "backend"); ok {
		dst.Backend = v
	}
	if v, ok := lookup(values, "session_id"); ok {
		dst.SessionID = v
	}
	if v, ok := lookup(values, "format"); ok {
		dst.Format = v
	}
	if v, ok := lookup(values, "namespace"); ok {
		dst.Namespace = v
	}
	return nil
}

func lookup(values url.Values, key string) (string, bool) {
	if _, ok := values[key]; !ok {
		return "", false
	}
	return values.Get(key), true
}

// ParseChatCompletionRequest parses and validates an OpenAI-compatible
// request body.
func ParseChatCompletionRequest(r *http.Request, maxBodyBytes int64) (*types.ChatCompletionRequest, error) {
	data, err := readBody(r, maxBodyBytes)
	if err != nil {
		return nil, err
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RequestError{Message: fmt.Sprintf("invalid JSON: %v", err), Code: types.CodeInvalidJSON}
	}

	if err := req.Validate(); err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			return nil, &RequestError{Field: ve.Field, Message: ve.Message, Code: types.CodeInvalidValue}
		}
		return nil, err
	}
	return &req, nil
}

// ToChatRequest maps an OpenAI-compatible request onto a relay request.
// The last message with non-empty text becomes the prompt. Earlier system
// messages form the system prompt and the remaining earlier user and
// assistant messages become history. Other roles are ignored.
func ToChatRequest(req *types.ChatCompletionRequest, sessionID string) providers.ChatRequest {
	last := -1
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if knownRole(req.Messages[i].Role) && strings.TrimSpace(req.Messages[i].Text()) != "" {
			last = i
			break
		}
	}

	out := providers.ChatRequest{
		Model:       req.Model,
		NumPredict:  req.MaxTokens,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		SessionID:   sessionID,
		Namespace:   strings.TrimSpace(req.Namespace),
	}
	if last < 0 {
		return out
	}
	out.Message = req.Messages[last].Text()

	var system []string
	for _, m := range req.Messages[:last] {
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		switch m.Role {
		case providers.RoleSystem:
			system = append(system, text)
		case providers.RoleUser, providers.RoleAssistant:
			out.History = append(out.History, providers.Message{Role: m.Role, Content: text})
		}
	}
	out.SystemPrompt = strings.Join(system, "\n")
	return out
}

func knownRole(role string) bool {
	switch role {
	case providers.RoleUser, providers.RoleSystem, providers.RoleAssistant:
		return true
	default:
		return false
	}
}

// ExtractRequestID returns the client-supplied request ID, if any.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}
