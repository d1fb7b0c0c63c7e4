package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

// Retry defaults.
const (
	DefaultBaseDelay = 500 * time.Millisecond
	MaxBackoff       = 8 * time.Second
)

// Controller retries retryable upstream failures with exponential backoff
// and turns everything that still fails into a degraded outcome. It never
// returns classified upstream failures to its caller.
type Controller struct {
	// Backend names the backend in logs and metrics.
	Backend string

	// Retries is the number of additional attempts after the first.
	Retries int

	// BaseDelay is the delay before the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration

	// Metrics may be nil.
	Metrics *metrics.Collector
}

// NewController creates a controller for one backend.
func NewController(cfg providers.BackendConfig, m *metrics.Collector) *Controller {
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Controller{
		Backend:   cfg.Name,
		Retries:   retries,
		BaseDelay: base,
		MaxDelay:  MaxBackoff,
		Metrics:   m,
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c *Controller) Backoff(attempt int) time.Duration {
	maxDelay := c.maxDelay()
	if attempt < 1 {
		attempt = 1
	}

	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// maxDelay is MaxDelay, or MaxBackoff when unset.
func (c *Controller) maxDelay() time.Duration {
	if c.MaxDelay <= 0 {
		return MaxBackoff
	}
	return c.MaxDelay
}

// Do runs op until it succeeds, fails terminally or the retry budget is
// spent. It returns the number of invocations and the last error.
func (c *Controller) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	attempts := 0
	for {
		attempts++
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		if !providers.IsRetryable(err) || attempts > c.Retries {
			return attempts, err
		}

		delay := c.Backoff(attempts)
		var rl *providers.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = min(rl.RetryAfter, c.maxDelay())
		}

		reason := providers.Reason(err)
		c.Metrics.RecordRetry(c.Backend, reason)
		slog.WarnContext(ctx, "retrying upstream call",
			"backend", c.Backend,
			"attempt", attempts,
			"max_attempts", c.Retries+1,
			"reason", reason,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}
}

// Complete runs a non-streaming call under the retry policy. The returned
// outcome is either the call's own outcome or a degraded one.
func (c *Controller) Complete(ctx context.Context, prompt string, op func(context.Context) (providers.RelayOutcome, error)) (providers.RelayOutcome, int) {
	var out providers.RelayOutcome
	attempts, err := c.Do(ctx, func(ctx context.Context) error {
		o, err := op(ctx)
		if err == nil {
			out = o
		}
		return err
	})
	if err != nil {
		return c.degrade(ctx, prompt, err), attempts
	}
	return out, attempts
}

// Open runs the open phase of a stream under the retry policy and forwards
// the resulting fragments. It returns immediately so callers can interpose
// heartbeats while the connection is being established. When every attempt
// fails the channel carries a single degraded error fragment. attempts, if
// non-nil, is called with the number of open attempts before any fragment
// is forwarded.
func (c *Controller) Open(ctx context.Context, prompt string, open func(context.Context) (<-chan providers.Fragment, error), attempts func(int)) <-chan providers.Fragment {
	out := make(chan providers.Fragment)

	go func() {
		defer close(out)

		var upstream <-chan providers.Fragment
		n, err := c.Do(ctx, func(ctx context.Context) error {
			ch, err := open(ctx)
			if err == nil {
				upstream = ch
			}
			return err
		})
		if attempts != nil {
			attempts(n)
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d := c.degrade(ctx, prompt, err)
			select {
			case out <- providers.ErrorFragment(providers.Reason(err), d.Reply):
			case <-ctx.Done():
			}
			return
		}

		for f := range upstream {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (c *Controller) degrade(ctx context.Context, prompt string, err error) providers.RelayOutcome {
	out := Degrade(prompt, err)
	slog.WarnContext(ctx, "upstream call degraded",
		"backend", c.Backend,
		"reason", providers.Reason(err),
		"error", err,
	)
	return out
}

// Degrade builds the degraded outcome for a failed call.
func Degrade(prompt string, err error) providers.RelayOutcome {
	reason := providers.Reason(err)
	return providers.RelayOutcome{
		Reply:    providers.DegradedText(reason, prompt),
		Provider: providers.DegradedTag(reason),
		Status:   providers.StatusDegraded,
	}
}
