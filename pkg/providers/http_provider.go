package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4096

// HTTPProvider is the base for HTTP-based adapters. It owns the HTTP client,
// enforces the connect/read/write/pool timeouts independently and tracks
// health.
//
// Keep-alives are disabled: every request dials its own connection and the
// connection is closed together with the response body.
type HTTPProvider struct {
	config BackendConfig
	client *http.Client

	health   Health
	healthMu sync.RWMutex
}

// NewHTTPProvider creates a base HTTP provider for cfg.
func NewHTTPProvider(cfg BackendConfig) *HTTPProvider {
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	name := cfg.Name

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				if isTimeout(err) && ctx.Err() == nil {
					return nil, &TimeoutError{Provider: name, Phase: "connect", Timeout: cfg.ConnectTimeout, Cause: err}
				}
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: cfg.ReadTimeout, write: cfg.WriteTimeout}, nil
		},
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: cfg,
		client: &http.Client{Transport: transport},
		health: Health{
			Healthy:   true, // optimistic until the first probe
			LastCheck: time.Now(),
		},
	}
}

// Name returns the backend name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Config returns the backend configuration.
func (p *HTTPProvider) Config() BackendConfig {
	return p.config
}

// DefaultModel returns the configured default model.
func (p *HTTPProvider) DefaultModel() ModelID {
	return ModelID(p.config.Model)
}

// URL joins the base URL and path.
func (p *HTTPProvider) URL(path string) string {
	return p.config.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// Do performs a single HTTP request. It never retries; retry policy belongs
// to the caller. Non-2xx statuses are turned into *RateLimitError or
// *ProviderError and the body is closed. On success the caller owns
// resp.Body and must close it.
func (p *HTTPProvider) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	var (
		poolTimer *time.Timer
		timerMu   sync.Mutex
	)
	if p.config.PoolTimeout > 0 {
		trace := &httptrace.ClientTrace{
			GetConn: func(string) {
				timerMu.Lock()
				defer timerMu.Unlock()
				poolTimer = time.AfterFunc(p.config.PoolTimeout, func() {
					cancel(&TimeoutError{Provider: p.config.Name, Phase: "pool", Timeout: p.config.PoolTimeout})
				})
			},
			GotConn: func(httptrace.GotConnInfo) {
				timerMu.Lock()
				defer timerMu.Unlock()
				if poolTimer != nil {
					poolTimer.Stop()
				}
			},
		}
		ctx = httptrace.WithClientTrace(ctx, trace)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL(path), bodyReader)
	if err != nil {
		cancel(nil)
		return nil, &ConfigError{Provider: p.config.Name, Field: "base_url", Message: err.Error()}
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	slog.DebugContext(ctx, "sending request to backend",
		"backend", p.config.Name,
		"method", method,
		"path", path,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		cause := context.Cause(ctx)
		cancel(nil)
		var te *TimeoutError
		if errors.As(cause, &te) {
			return nil, te
		}
		return nil, ClassifyTransport(p.config.Name, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	cancel(nil)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Provider:   p.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(errorBody),
		}
	}
	return nil, &ProviderError{
		Provider:   p.config.Name,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(errorBody)),
	}
}

// DoJSON marshals reqBody, performs the request and decodes the response into respBody.
func (p *HTTPProvider) DoJSON(ctx context.Context, method, path string, reqBody, respBody any, headers map[string]string) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := p.Do(ctx, method, path, payload, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyTransport(p.config.Name, err)
	}
	if respBody == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		raw := string(data)
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return &ParseError{Provider: p.config.Name, RawResponse: raw, Cause: err}
	}
	return nil
}

// Probe performs a lightweight request and treats any status below 500 as healthy.
func (p *HTTPProvider) Probe(ctx context.Context, method, path string, headers map[string]string) error {
	resp, err := p.Do(ctx, method, path, nil, headers)
	if err == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return resp.Body.Close()
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode < 500 {
		return nil
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return nil
	}
	return err
}

// Close closes the HTTP client's idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("backend closed", "backend", p.config.Name)
	return nil
}

// deadlineConn applies a fresh deadline before every read and write so that
// an idle upstream is detected between stream records, not only before
// the response head.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// cancelOnClose releases the request context together with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
	once   sync.Once
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
