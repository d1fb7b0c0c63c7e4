package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// FragmentReader decodes fragments from one upstream response body.
type FragmentReader interface {
	// Next returns the next content or terminal fragment. It returns io.EOF
	// when the body ends without a terminal record and any other error when
	// the body cannot be read.
	Next() (Fragment, error)

	// Close releases the upstream response body.
	Close() error
}

// Pump drains r on a new goroutine and returns the fragment channel handed
// to callers of CompleteStreaming. The channel always ends with exactly one
// terminal fragment unless ctx is cancelled first. r is closed when the
// goroutine exits.
func Pump(ctx context.Context, backend string, r FragmentReader, prompt string) <-chan Fragment {
	out := make(chan Fragment)

	go func() {
		defer close(out)
		defer r.Close()

		send := func(f Fragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			f, err := r.Next()
			if err != nil {
				if ctx.Err() != nil {
					slog.DebugContext(ctx, "upstream stream abandoned",
						"backend", backend,
						"error", ctx.Err(),
					)
					return
				}
				if errors.Is(err, io.EOF) {
					send(DoneFragment(DoneReasonEOF))
					return
				}
				err = ClassifyTransport(backend, err)
				reason := Reason(err)
				slog.WarnContext(ctx, "upstream stream failed",
					"backend", backend,
					"reason", reason,
					"error", err,
				)
				send(ErrorFragment(reason, DegradedText(reason, prompt)))
				return
			}

			if !send(f) || f.Terminal() {
				return
			}
		}
	}()

	return out
}
