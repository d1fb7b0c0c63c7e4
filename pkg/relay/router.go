package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/telemetry/logging"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
	"oqs-hq/chatrelay/pkg/telemetry/tracing"
)

// Request modes.
const (
	ModeOnce   = "once"
	ModeStream = "stream"
)

// Backends resolves backend names to adapters and their configuration.
type Backends interface {
	Lookup(name string) (providers.Adapter, providers.BackendConfig, error)
	DefaultName() string
}

// PromptSource supplies the process-wide system prompt.
type PromptSource interface {
	SystemPrompt() string
}

// History stores conversation turns per session.
type History interface {
	History(sessionID string) []providers.Message
	Append(sessionID string, msgs ...providers.Message)
}

// ContextSource returns passages relevant to a query within a namespace.
type ContextSource interface {
	Search(ctx context.Context, namespace, query string) ([]string, error)
}

// Observer receives the result of every relayed request.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

// Result describes one finished request for observers.
type Result struct {
	ID         string
	RequestID  string
	Client     string
	Mode       string
	Backend    string
	Model      string
	Provider   string
	Status     providers.Status
	DoneReason string
	Fragments  int
	Heartbeats int
	Attempts   int
	Passages   int
	Latency    time.Duration
	Started    time.Time
}

// Route is a fully resolved request.
type Route struct {
	Backend   string
	Adapter   providers.Adapter
	Config    providers.BackendConfig
	Prompt    string
	Params    providers.Params
	Stream    bool
	SessionID string
	// Namespace selects the retrieval corpus; empty disables retrieval.
	Namespace string
}

// Router resolves chat requests and runs them through the retry controller,
// the heartbeat multiplexer and a framer. It keeps no per-request state.
type Router struct {
	backends  Backends
	prompts   PromptSource
	history   History
	observer  Observer
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	heartbeat time.Duration

	contexts         ContextSource
	defaultNamespace string
}

// Option configures a Router.
type Option func(*Router)

// WithPromptSource sets the system prompt source.
func WithPromptSource(p PromptSource) Option { return func(r *Router) { r.prompts = p } }

// WithHistory enables session history.
func WithHistory(h History) Option { return func(r *Router) { r.history = h } }

// WithObserver registers a result observer.
func WithObserver(o Observer) Option { return func(r *Router) { r.observer = o } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(r *Router) { r.metrics = m } }

// WithTracer records one span per relayed request.
func WithTracer(t *tracing.Tracer) Option { return func(r *Router) { r.tracer = t } }

// WithHeartbeat sets the heartbeat interval.
func WithHeartbeat(d time.Duration) Option { return func(r *Router) { r.heartbeat = d } }

// WithContextSource enables retrieval. Requests without a namespace use
// defaultNamespace; when that is empty too they get no context.
func WithContextSource(src ContextSource, defaultNamespace string) Option {
	return func(r *Router) {
		r.contexts = src
		r.defaultNamespace = defaultNamespace
	}
}

// NewRouter creates a router over backends.
func NewRouter(backends Backends, opts ...Option) *Router {
	r := &Router{
		backends:  backends,
		heartbeat: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates req and picks the backend, model, output budget and
// system prompt. Invalid input yields a *providers.ValidationError and no
// adapter is called.
func (r *Router) Resolve(req providers.ChatRequest) (*Route, error) {
	prompt := strings.TrimSpace(req.Message)
	if prompt == "" {
		return nil, &providers.ValidationError{Field: "message", Message: "message is required"}
	}

	namespace := req.Namespace
	if namespace != "" && !config.ValidNamespace(namespace) {
		return nil, &providers.ValidationError{Field: "namespace", Message: fmt.Sprintf("invalid namespace %q", namespace)}
	}
	if namespace == "" {
		namespace = r.defaultNamespace
	}

	adapter, cfg, err := r.backends.Lookup(req.Backend)
	if err != nil {
		name := req.Backend
		if name == "" {
			name = r.backends.DefaultName()
		}
		return nil, &providers.ValidationError{Field: "backend", Message: fmt.Sprintf("unknown backend %q", name)}
	}

	params := providers.Params{
		Model:        strings.TrimSpace(req.Model),
		NumCtx:       cfg.NumCtx,
		NumPredict:   cfg.NumPredict,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		Stop:         req.Stop,
		History:      req.History,
	}
	if params.Model == "" {
		params.Model = string(adapter.DefaultModel())
	}
	if req.NumPredict != nil {
		params.NumPredict = *req.NumPredict
	}
	if params.SystemPrompt == "" && r.prompts != nil {
		params.SystemPrompt = r.prompts.SystemPrompt()
	}
	if len(params.History) == 0 && req.SessionID != "" && r.history != nil {
		params.History = r.history.History(req.SessionID)
	}

	return &Route{
		Backend:   adapter.Name(),
		Adapter:   adapter,
		Config:    cfg,
		Prompt:    prompt,
		Params:    params,
		Stream:    req.Stream,
		SessionID: req.SessionID,
		Namespace: namespace,
	}, nil
}

// Complete runs a non-streaming request. It always returns an outcome:
// upstream failures come back degraded.
func (r *Router) Complete(ctx context.Context, route *Route) providers.RelayOutcome {
	ctx, span := r.startSpan(ctx, "relay.complete", route, ModeOnce)
	defer span.End()
	r.addContext(ctx, span, route)

	started := time.Now()
	ctrl := NewController(route.Config, r.metrics)

	out, attempts := ctrl.Complete(ctx, route.Prompt, func(ctx context.Context) (providers.RelayOutcome, error) {
		return route.Adapter.CompleteOnce(ctx, route.Prompt, route.Params)
	})
	r.metrics.RecordUpstreamLatency(route.Backend, "complete", time.Since(started))

	reason := ""
	switch out.Status {
	case providers.StatusOK:
		r.remember(route, out.Reply)
	case providers.StatusDegraded:
		reason = strings.TrimPrefix(out.Provider, providers.DegradedTag(""))
	}

	r.finish(ctx, route, Result{
		Mode:       ModeOnce,
		Model:      route.Params.Model,
		Provider:   out.Provider,
		Status:     out.Status,
		DoneReason: out.DoneReason,
		Attempts:   attempts,
		Started:    started,
	}, reason)

	return out
}

// Stream runs a streaming request, writing framed fragments to sink until
// the terminal fragment. A write failure or ctx cancellation stops the
// stream and closes the upstream connection before Stream returns.
func (r *Router) Stream(ctx context.Context, route *Route, sink Sink, framer Framer) (Stats, error) {
	ctx, span := r.startSpan(ctx, "relay.stream", route, ModeStream)
	defer span.End()
	r.addContext(ctx, span, route)

	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var attempts atomic.Int64
	ctrl := NewController(route.Config, r.metrics)
	upstream := ctrl.Open(ctx, route.Prompt, func(ctx context.Context) (<-chan providers.Fragment, error) {
		openStarted := time.Now()
		ch, err := route.Adapter.CompleteStreaming(ctx, route.Prompt, route.Params)
		r.metrics.RecordUpstreamLatency(route.Backend, "open", time.Since(openStarted))
		return ch, err
	}, func(n int) { attempts.Store(int64(n)) })

	stats, err := Pump(ctx, sink, Multiplex(ctx, upstream, r.heartbeat), framer)
	cancel()

	res := Result{
		Mode:       ModeStream,
		Model:      route.Params.Model,
		Fragments:  stats.Fragments,
		Heartbeats: stats.Heartbeats,
		Attempts:   int(attempts.Load()),
		Started:    started,
	}
	reason := ""

	switch {
	case err != nil || !stats.Finished:
		// Client went away or the stream was cut; nothing more can be delivered.
		res.Status = providers.StatusDegraded
		reason = providers.ReasonCanceled
		if err != nil && !errors.Is(err, context.Canceled) {
			reason = providers.ReasonConnection
		}
		res.Provider = providers.DegradedTag(reason)
	case stats.Terminal.Kind == providers.FragmentError:
		reason = stats.Terminal.Reason
		res.Status = providers.StatusDegraded
		res.Provider = providers.DegradedTag(reason)
	case route.Adapter.Type() == providers.TypeEcho:
		res.Status = providers.StatusEcho
		res.Provider = providers.EchoProvider
		res.DoneReason = stats.Terminal.Reason
	case strings.TrimSpace(stats.Text) == "":
		res.Status = providers.StatusEmpty
		res.Provider = fmt.Sprintf("%s-empty:%s", route.Adapter.Type(), route.Params.Model)
		res.DoneReason = stats.Terminal.Reason
	default:
		res.Status = providers.StatusOK
		res.Provider = fmt.Sprintf("%s:chat:%s", route.Adapter.Type(), route.Params.Model)
		res.DoneReason = stats.Terminal.Reason
		r.remember(route, stats.Text)
	}

	r.metrics.RecordHeartbeats(route.Backend, stats.Heartbeats)
	r.metrics.RecordFragments(route.Backend, stats.Fragments)
	r.metrics.RecordStreamDuration(route.Backend, time.Since(started))
	r.finish(ctx, route, res, reason)

	return stats, err
}

// addContext fills route.Params.Context from the context source. A failed
// lookup is logged and the request goes ahead without context.
func (r *Router) addContext(ctx context.Context, span trace.Span, route *Route) {
	if r.contexts == nil || route.Namespace == "" || len(route.Params.Context) > 0 {
		return
	}

	passages, err := r.contexts.Search(ctx, route.Namespace, route.Prompt)
	if err != nil {
		slog.WarnContext(ctx, "context retrieval failed", "namespace", route.Namespace, "error", err)
		tracing.AddEvent(span, "context.failed", attribute.String("namespace", route.Namespace))
		return
	}
	route.Params.Context = passages
	tracing.AddEvent(span, "context.retrieved",
		attribute.String("namespace", route.Namespace),
		attribute.Int("passages", len(passages)),
	)
}

// remember appends a successful turn to the session history.
func (r *Router) remember(route *Route, reply string) {
	if r.history == nil || route.SessionID == "" {
		return
	}
	r.history.Append(route.SessionID,
		providers.Message{Role: providers.RoleUser, Content: route.Prompt},
		providers.Message{Role: providers.RoleAssistant, Content: reply},
	)
}

// finish records metrics, logs and notifies the observer.
func (r *Router) finish(ctx context.Context, route *Route, res Result, reason string) {
	res.ID = uuid.NewString()
	res.RequestID = logging.GetRequestID(ctx)
	res.Client = logging.GetClient(ctx)
	res.Backend = route.Backend
	res.Latency = time.Since(res.Started)
	res.Passages = len(route.Params.Context)

	r.metrics.RecordRequest(res.Backend, res.Model, res.Mode, string(res.Status), res.Latency)
	if res.Status == providers.StatusDegraded {
		r.metrics.RecordDegraded(res.Backend, reason)
	}

	slog.InfoContext(ctx, "relay finished",
		"backend", res.Backend,
		"model", res.Model,
		"mode", res.Mode,
		"status", res.Status,
		"provider", res.Provider,
		"done_reason", res.DoneReason,
		"fragments", res.Fragments,
		"heartbeats", res.Heartbeats,
		"attempts", res.Attempts,
		"context_passages", res.Passages,
		"latency_ms", res.Latency.Milliseconds(),
	)

	tracing.SetOutcome(trace.SpanFromContext(ctx), tracing.Outcome{
		Status:     string(res.Status),
		Provider:   res.Provider,
		DoneReason: res.DoneReason,
		Fragments:  res.Fragments,
		Heartbeats: res.Heartbeats,
		Attempts:   res.Attempts,
		Degraded:   res.Status == providers.StatusDegraded,
		Reason:     reason,
	})

	if r.observer != nil {
		r.observer.Observe(context.WithoutCancel(ctx), res)
	}
}

func (r *Router) startSpan(ctx context.Context, name string, route *Route, mode string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(tracing.RouteAttributes(route.Backend, route.Params.Model, mode, route.SessionID)...),
	)
}
