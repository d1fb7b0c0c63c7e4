// Package secrets resolves ${secret:name} references found in configuration
// values such as backend API keys and gateway client keys.
//
// Values come from an ordered list of providers. The file provider reads one
// file per secret from a directory (the layout Kubernetes and Docker use for
// mounted secrets) and can watch it for rotation. The environment provider
// maps a secret name to a prefixed, upper-cased variable:
//
//	openai-key -> CHATRELAY_SECRET_OPENAI_KEY
//
// Resolved values are cached by the Manager for a bounded time.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secret values by name.
type Provider interface {
	// Kind names the provider in logs ("env", "file").
	Kind() string

	// Lookup returns the value of name, or an error wrapping ErrNotFound
	// when the provider does not hold it.
	Lookup(ctx context.Context, name string) (string, error)
}

// Watcher is implemented by providers whose values can change at runtime.
// Watch blocks until ctx is done, calling changed with the name of every
// secret that was modified.
type Watcher interface {
	Watch(ctx context.Context, changed func(name string)) error
}
