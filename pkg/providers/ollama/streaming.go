package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"oqs-hq/chatrelay/pkg/providers"
)

// maxRecordSize bounds a single NDJSON line.
const maxRecordSize = 1 << 20

// streamReader decodes an NDJSON body from /api/generate or /api/chat.
type streamReader struct {
	backend string
	body    io.ReadCloser
	scanner *bufio.Scanner

	// pending holds a terminal fragment that arrived in the same record as
	// the last text delta.
	pending *providers.Fragment
	closed  bool
}

func newStreamReader(backend string, body io.ReadCloser) *streamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
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
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Some proxies in front of Ollama re-emit lines as SSE.
		line = bytes.TrimPrefix(line, []byte("data: "))
		if string(line) == "[DONE]" {
			return providers.DoneFragment(providers.DoneReasonStop), nil
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Debug("skipping malformed stream record",
				"backend", s.backend,
				"error", err,
			)
			continue
		}

		if msg := errorText(rec.Error); msg != "" {
			return providers.ErrorFragment(providers.ReasonServerError,
				"[degraded:"+providers.ReasonServerError+"] "+msg), nil
		}

		delta := decodeDelta(rec)
		if rec.Done {
			done := providers.DoneFragment(rec.DoneReason)
			if delta == "" {
				return done, nil
			}
			s.pending = &done
		}
		if delta != "" {
			return providers.TextFragment(delta), nil
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
