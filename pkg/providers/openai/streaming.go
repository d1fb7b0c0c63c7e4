package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"oqs-hq/chatrelay/pkg/providers"
)

// streamReader reads Server-Sent Events from a chat completion stream.
type streamReader struct {
	backend string
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending *providers.Fragment
	closed  bool
}

func newStreamReader(backend string, body io.ReadCloser) *streamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &streamReader{backend: backend, body: body, scanner: scanner}
}

// Next implements providers.FragmentReader.
func (s *streamReader) Next() (providers.Fragment, error) {
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, nil
	}
	if s.closed {
		return providers.Fragment{}, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Skip blank lines, comments and event names.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return providers.DoneFragment(providers.DoneReasonStop), nil
		}

		var chunk StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Debug("skipping malformed stream chunk",
				"backend", s.backend,
				"error", err,
			)
			continue
		}

		if msg := errorText(chunk.Error); msg != "" {
			return providers.ErrorFragment(providers.ReasonServerError,
				"[degraded:"+providers.ReasonServerError+"] "+msg), nil
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			done := providers.DoneFragment(*choice.FinishReason)
			if choice.Delta.Content == "" {
				return done, nil
			}
			s.pending = &done
		}
		if choice.Delta.Content != "" {
			return providers.TextFragment(choice.Delta.Content), nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return providers.Fragment{}, err
	}
	return providers.Fragment{}, io.EOF
}

// Close implements providers.FragmentReader.
func (s *streamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
