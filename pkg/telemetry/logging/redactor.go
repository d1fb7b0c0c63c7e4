package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "[REDACTED]"

// defaultRedactKeys are attribute keys whose values are always masked.
var defaultRedactKeys = []string{"api_key", "authorization", "token", "password", "secret"}

// valuePatterns mask credentials that appear inside otherwise harmless
// strings, such as an error message quoting a request header.
var valuePatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{8,}`), "sk-***"},
}

// Redactor masks secrets in log attributes.
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor creates a Redactor masking the default keys plus extraKeys.
// Keys are matched case-insensitively.
func NewRedactor(extraKeys []string) *Redactor {
	r := &Redactor{keys: make(map[string]struct{})}
	for _, k := range defaultRedactKeys {
		r.keys[k] = struct{}{}
	}
	for _, k := range extraKeys {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	return r
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := r.keys[strings.ToLower(a.Key)]; ok {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if s := r.RedactString(a.Value.String()); s != a.Value.String() {
			return slog.String(a.Key, s)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if s := r.RedactString(err.Error()); s != err.Error() {
				return slog.String(a.Key, s)
			}
		}
	}
	return a
}

// RedactString masks credential-looking substrings of s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range valuePatterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
