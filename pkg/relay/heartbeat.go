package relay

import (
	"context"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
)

// DefaultHeartbeatInterval is the idle time after which a heartbeat is sent.
const DefaultHeartbeatInterval = 2 * time.Second

// Multiplex interposes heartbeat fragments into in.
//
// One heartbeat is emitted immediately. After that a single clock is shared
// by heartbeats and content: whenever interval passes with nothing emitted a
// heartbeat is sent, and a fragment arriving after the interval has already
// elapsed is preceded by one. Fragments are forwarded in order and never
// altered. The returned channel is closed after the first terminal fragment
// has been forwarded, when in is closed, or when ctx is done; Multiplex never
// synthesizes a terminal fragment of its own.
func Multiplex(ctx context.Context, in <-chan providers.Fragment, interval time.Duration) <-chan providers.Fragment {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	out := make(chan providers.Fragment)

	go func() {
		defer close(out)

		lastEmit := time.Now()
		send := func(f providers.Fragment) bool {
			select {
			case out <- f:
				lastEmit = time.Now()
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(providers.HeartbeatFragment()) {
			return
		}

		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-timer.C:
				if !send(providers.HeartbeatFragment()) {
					return
				}
				timer.Reset(interval)

			case f, ok := <-in:
				if !ok {
					return
				}
				if time.Since(lastEmit) >= interval {
					if !send(providers.HeartbeatFragment()) {
						return
					}
				}
				if !send(f) {
					return
				}
				if f.Terminal() {
					return
				}
				timer.Reset(interval)
			}
		}
	}()

	return out
}
