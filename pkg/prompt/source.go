// Package prompt provides the process-wide system prompt. The prompt comes
// from configuration or from a file that is watched and reloaded on change.
package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Source holds the current system prompt. Reads are lock-free.
type Source struct {
	value  atomic.Pointer[string]
	path   string
	logger *slog.Logger
}

// NewStatic returns a source that always yields text.
func NewStatic(text string) *Source {
	s := &Source{logger: slog.Default().With("component", "prompt")}
	s.set(text)
	return s
}

// NewFileSource loads the prompt from path. fallback is used while the
// file is empty.
func NewFileSource(path, fallback string) (*Source, error) {
	s := &Source{
		path:   path,
		logger: slog.Default().With("component", "prompt"),
	}
	s.set(fallback)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// SystemPrompt returns the current prompt.
func (s *Source) SystemPrompt() string {
	if p := s.value.Load(); p != nil {
		return *p
	}
	return ""
}

// Path returns the watched file, or "" for a static source.
func (s *Source) Path() string {
	return s.path
}

// Reload re-reads the prompt file. A failed read keeps the previous prompt.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read system prompt file %q: %w", s.path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		s.logger.Warn("system prompt file is empty, keeping previous prompt", "path", s.path)
		return nil
	}

	s.set(text)
	s.logger.Info("system prompt loaded", "path", s.path, "length", len(text))
	return nil
}

func (s *Source) set(text string) {
	s.value.Store(&text)
}
