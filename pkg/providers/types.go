package providers

import (
	"net/url"
	"strings"
	"time"
)

// ModelID names a model served by a backend.
type ModelID string

// Message is a single turn of conversation history sent to a backend.
type Message struct {
	// Role is the author of the message ("system", "user" or "assistant").
	Role string `json:"role"`

	// Content is the text of the message.
	Content string `json:"content"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is one inbound chat call as parsed from the client.
// Zero values mean "use the process default" for every optional field.
type ChatRequest struct {
	// Message is the user prompt. It must be non-empty after trimming.
	Message string

	// Model overrides the backend's default model.
	Model string

	// NumPredict overrides the backend's output token budget.
	NumPredict *int

	// Stream selects incremental delivery. Absent means false.
	Stream bool

	// SystemPrompt overrides the process-wide system prompt.
	SystemPrompt string

	// Temperature is an optional sampling temperature.
	Temperature *float64

	// TopP is an optional nucleus sampling value.
	TopP *float64

	// Stop lists optional stop sequences.
	Stop []string

	// Backend selects a configured backend by name.
	Backend string

	// SessionID keys the bounded conversation history, if enabled.
	SessionID string

	// History holds prior turns supplied directly by the caller
	// (for example from an OpenAI-style messages array).
	History []Message

	// Namespace selects the retrieval namespace whose passages are added
	// as context. Empty falls back to the configured default.
	Namespace string
}

// Params are the fully resolved parameters for one adapter call.
type Params struct {
	Model        string
	NumCtx       int
	NumPredict   int
	SystemPrompt string
	Temperature  *float64
	TopP         *float64
	Stop         []string
	History      []Message

	// Context holds retrieved passages, sent as one system message between
	// the history and the user prompt.
	Context []string
}

// Status is the terminal status of a relay outcome.
type Status string

const (
	// StatusOK means the backend produced a non-empty reply.
	StatusOK Status = "ok"

	// StatusEmpty means the backend answered but no reply text could be extracted.
	StatusEmpty Status = "empty"

	// StatusDegraded means the backend failed and a synthesized reply was returned.
	StatusDegraded Status = "degraded"

	// StatusEcho means no backend is configured and the prompt was echoed.
	StatusEcho Status = "echo"
)

// RelayOutcome is the single result of a non-streaming request.
type RelayOutcome struct {
	// Reply is the text returned to the client.
	Reply string `json:"reply"`

	// Provider is the provenance tag, e.g. "ollama:chat:llama3.2:1b",
	// "local-echo" or "degraded:timeout".
	Provider string `json:"provider"`

	// Status is the terminal status.
	Status Status `json:"status"`

	// Model is the model that served the request, if any.
	Model string `json:"model,omitempty"`

	// DoneReason is the upstream terminal reason when it was not "stop".
	DoneReason string `json:"done_reason,omitempty"`
}

// FragmentKind distinguishes content from control markers.
type FragmentKind int

const (
	// FragmentText carries incremental reply text.
	FragmentText FragmentKind = iota

	// FragmentHeartbeat is a content-free liveness marker.
	FragmentHeartbeat

	// FragmentDone is the normal terminal marker.
	FragmentDone

	// FragmentError is the degraded terminal marker.
	FragmentError
)

// String returns the kind name used in logs.
func (k FragmentKind) String() string {
	switch k {
	case FragmentText:
		return "text"
	case FragmentHeartbeat:
		return "heartbeat"
	case FragmentDone:
		return "done"
	case FragmentError:
		return "error"
	default:
		return "unknown"
	}
}

// Fragment is one ordered unit of streamed output.
type Fragment struct {
	Kind FragmentKind

	// Text is the content for FragmentText and the degraded text for FragmentError.
	Text string

	// Reason is the terminal reason for FragmentDone ("stop", "length", ...)
	// and the failure reason for FragmentError ("timeout", "http:503", ...).
	Reason string
}

// Terminal reports whether f ends a stream.
func (f Fragment) Terminal() bool {
	return f.Kind == FragmentDone || f.Kind == FragmentError
}

// TextFragment returns a content fragment.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// HeartbeatFragment returns a liveness marker.
func HeartbeatFragment() Fragment {
	return Fragment{Kind: FragmentHeartbeat}
}

// DoneFragment returns a terminal marker with the given reason.
// An empty reason is normalized to "stop".
func DoneFragment(reason string) Fragment {
	if reason == "" {
		reason = DoneReasonStop
	}
	return Fragment{Kind: FragmentDone, Reason: reason}
}

// ErrorFragment returns a degraded terminal marker.
func ErrorFragment(reason, text string) Fragment {
	return Fragment{Kind: FragmentError, Reason: reason, Text: text}
}

// Done reasons.
const (
	DoneReasonStop = "stop"
	DoneReasonEOF  = "eof"
)

// BackendConfig is the immutable configuration of one backend.
type BackendConfig struct {
	// Name is the unique name of this backend (e.g. "ollama", "hosted").
	Name string

	// Type selects the adapter implementation ("ollama", "openai", "echo").
	Type string

	// BaseURL is the backend address. Empty selects the local echo adapter.
	BaseURL string

	// APIKey is sent as a bearer token by adapters that need one.
	APIKey string

	// Model is the default model.
	Model string

	// NumCtx is the context window size.
	NumCtx int

	// NumPredict is the default output token budget.
	NumPredict int

	// ConnectTimeout bounds TCP/TLS connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout bounds every individual read from the upstream connection.
	ReadTimeout time.Duration

	// WriteTimeout bounds every individual write to the upstream connection.
	WriteTimeout time.Duration

	// PoolTimeout bounds the time spent obtaining a connection.
	PoolTimeout time.Duration

	// KeepAlive is how long the backend should keep the model loaded (e.g. "30m").
	KeepAlive string

	// Retries is the number of additional attempts for retryable failures.
	Retries int

	// RetryBaseDelay is the first backoff delay.
	RetryBaseDelay time.Duration

	// Headers are extra headers sent with every upstream request.
	Headers map[string]string
}

// Backend types.
const (
	TypeOllama = "ollama"
	TypeOpenAI = "openai"
	TypeEcho   = "echo"
)

// EchoProvider is the provenance tag of the local echo fallback.
const EchoProvider = "local-echo"

// NormalizeBaseURL trims s, strips trailing slashes and adds an http://
// scheme when none is present. An empty input stays empty.
func NormalizeBaseURL(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}

// ValidateBaseURL reports whether a normalized base URL can be dialed.
func ValidateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "base_url", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "base_url", Message: "host is required"}
	}
	return nil
}

// EchoReply is the fallback text used when no backend reply is available.
func EchoReply(prompt string) string {
	return "You said: " + prompt
}

// DegradedText is the reply synthesized when a backend fails.
func DegradedText(reason, prompt string) string {
	return "[degraded:" + reason + "] " + EchoReply(prompt)
}

// DegradedTag is the provenance tag of a degraded reply.
func DegradedTag(reason string) string {
	return "degraded:" + reason
}
