package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/proxy/types"
)

// Framer renders fragments into the bytes one client contract expects.
// Encode returns the units to write for f; each unit is flushed on its own.
type Framer interface {
	ContentType() string
	Encode(f providers.Fragment) [][]byte
}

var (
	heartbeatLine = []byte(":hb\n")
	doneEvent     = []byte("data: [DONE]\n\n")
)

// LineFramer writes each text fragment followed by a newline. Heartbeats are
// ":" comment lines; a normal stop adds nothing, any other terminal reason
// adds a "[done:reason]" marker line, and an error fragment writes its
// degraded text. An upstream that closes without a done record ends with
// "[done:eof]" so clients can tell the answer may be cut.
type LineFramer struct{}

// ContentType implements Framer.
func (LineFramer) ContentType() string { return "text/plain; charset=utf-8" }

// Encode implements Framer.
func (LineFramer) Encode(f providers.Fragment) [][]byte {
	switch f.Kind {
	case providers.FragmentText:
		return [][]byte{[]byte(f.Text + "\n")}
	case providers.FragmentHeartbeat:
		return [][]byte{heartbeatLine}
	case providers.FragmentDone:
		if f.Reason == providers.DoneReasonStop {
			return nil
		}
		return [][]byte{[]byte("\n[done:" + f.Reason + "]\n")}
	case providers.FragmentError:
		return [][]byte{[]byte("\n" + f.Text + "\n")}
	default:
		return nil
	}
}

// EventFramer writes server-sent events. Text becomes one "data:" line per
// text line, the stream ends with "data: [DONE]".
type EventFramer struct{}

// ContentType implements Framer.
func (EventFramer) ContentType() string { return "text/event-stream" }

// Encode implements Framer.
func (EventFramer) Encode(f providers.Fragment) [][]byte {
	switch f.Kind {
	case providers.FragmentText:
		return [][]byte{dataEvent(f.Text)}
	case providers.FragmentHeartbeat:
		return [][]byte{heartbeatLine}
	case providers.FragmentDone:
		if f.Reason == providers.DoneReasonStop {
			return [][]byte{doneEvent}
		}
		return [][]byte{dataEvent("[done:" + f.Reason + "]"), doneEvent}
	case providers.FragmentError:
		return [][]byte{dataEvent(f.Text), doneEvent}
	default:
		return nil
	}
}

// dataEvent frames payload as one event; embedded newlines become
// continuation "data:" lines so the event survives SSE parsing.
func dataEvent(payload string) []byte {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// ChunkFramer emulates the OpenAI chat.completion.chunk stream. The first
// chunk carries the assistant role, the terminal fragment becomes a final
// chunk with finish_reason followed by "data: [DONE]".
type ChunkFramer struct {
	ID      string
	Model   string
	Created int64

	started bool
}

// NewChunkFramer creates a framer for one completion of model.
func NewChunkFramer(model string) *ChunkFramer {
	return &ChunkFramer{
		ID:      NewCompletionID(),
		Model:   model,
		Created: time.Now().Unix(),
	}
}

// NewCompletionID returns an OpenAI-style completion identifier.
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ContentType implements Framer.
func (c *ChunkFramer) ContentType() string { return "text/event-stream" }

// Encode implements Framer.
func (c *ChunkFramer) Encode(f providers.Fragment) [][]byte {
	switch f.Kind {
	case providers.FragmentText:
		return [][]byte{c.chunk(f.Text, nil)}
	case providers.FragmentHeartbeat:
		return [][]byte{heartbeatLine}
	case providers.FragmentDone:
		reason := f.Reason
		if reason == providers.DoneReasonEOF {
			reason = providers.DoneReasonStop
		}
		return [][]byte{c.chunk("", &reason), doneEvent}
	case providers.FragmentError:
		reason := providers.DoneReasonStop
		return [][]byte{c.chunk(f.Text, &reason), doneEvent}
	default:
		return nil
	}
}

func (c *ChunkFramer) chunk(content string, finish *string) []byte {
	delta := types.Delta{Content: content}
	if !c.started {
		delta.Role = providers.RoleAssistant
		c.started = true
	}

	data, err := json.Marshal(types.ChatCompletionStreamChunk{
		ID:      c.ID,
		Object:  types.ObjectChatCompletionChunk,
		Created: c.Created,
		Model:   c.Model,
		Choices: []types.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	})
	if err != nil {
		// Only strings and ints are marshalled; this cannot fail.
		return nil
	}
	return []byte("data: " + string(data) + "\n\n")
}

// Sink is the outbound side of a stream.
type Sink interface {
	io.Writer
	Flush() error
}

// HTTPSink writes to an http.ResponseWriter, flushing through
// http.ResponseController. Every unit gets its own write deadline.
type HTTPSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

// NewHTTPSink wraps w. A zero writeTimeout disables per-unit deadlines.
func NewHTTPSink(w http.ResponseWriter, writeTimeout time.Duration) *HTTPSink {
	return &HTTPSink{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

// Write implements io.Writer. It arms the write deadline that Flush clears.
func (s *HTTPSink) Write(p []byte) (int, error) {
	if s.writeTimeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}
	return s.w.Write(p)
}

// Flush implements Sink. Writers that cannot flush are treated as flushed.
func (s *HTTPSink) Flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if s.writeTimeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	return nil
}

// Stats summarizes one pumped stream.
type Stats struct {
	// Fragments counts text fragments written.
	Fragments int

	// Heartbeats counts heartbeats written.
	Heartbeats int

	// Bytes counts bytes written to the sink.
	Bytes int64

	// Finished reports whether a terminal fragment was written.
	Finished bool

	// Terminal is the terminal fragment when Finished is set.
	Terminal providers.Fragment

	// Text is the concatenated content of all text fragments.
	Text string
}

// Pump encodes every fragment of frags with framer and writes it to sink,
// flushing after each unit. It returns after the terminal fragment, when
// frags is closed, on the first write or flush error, or when ctx is done.
func Pump(ctx context.Context, sink Sink, frags <-chan providers.Fragment, framer Framer) (Stats, error) {
	var (
		st   Stats
		text strings.Builder
	)

	for {
		select {
		case <-ctx.Done():
			st.Text = text.String()
			return st, ctx.Err()

		case f, ok := <-frags:
			if !ok {
				st.Text = text.String()
				return st, nil
			}

			for _, unit := range framer.Encode(f) {
				n, err := sink.Write(unit)
				st.Bytes += int64(n)
				if err != nil {
					st.Text = text.String()
					return st, fmt.Errorf("failed to write stream: %w", err)
				}
				if err := sink.Flush(); err != nil {
					st.Text = text.String()
					return st, fmt.Errorf("failed to flush stream: %w", err)
				}
			}

			switch f.Kind {
			case providers.FragmentText:
				st.Fragments++
				text.WriteString(f.Text)
			case providers.FragmentHeartbeat:
				st.Heartbeats++
			}

			if f.Terminal() {
				st.Finished = true
				st.Terminal = f
				st.Text = text.String()
				return st, nil
			}
		}
	}
}
