package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"oqs-hq/chatrelay/pkg/config"
)

// Validator checks presented keys against the configured set. Keys are
// indexed by digest so lookups do not compare raw values.
type Validator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]Key
}

// NewValidator creates a validator holding keys.
func NewValidator(keys []Key) *Validator {
	v := &Validator{}
	v.Replace(keys)
	return v
}

// Validate returns the key matching value.
func (v *Validator) Validate(value string) (Key, error) {
	if value == "" {
		return Key{}, ErrMissingKey
	}

	v.mu.RLock()
	k, ok := v.keys[sha256.Sum256([]byte(value))]
	v.mu.RUnlock()

	switch {
	case !ok:
		return Key{}, ErrInvalidKey
	case k.Disabled:
		return Key{}, ErrDisabledKey
	}
	return k, nil
}

// Replace swaps the whole key set, for example after a secret rotation.
func (v *Validator) Replace(keys []Key) {
	m := make(map[[sha256.Size]byte]Key, len(keys))
	for _, k := range keys {
		m[sha256.Sum256([]byte(k.Value))] = k
	}
	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}

// Len returns the number of configured keys.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Resolver expands secret references in a configured value.
type Resolver interface {
	Resolve(ctx context.Context, s string) (string, error)
}

// KeysFromConfig builds the key set of cfg, resolving every value through r.
func KeysFromConfig(ctx context.Context, cfg config.AuthConfig, r Resolver) ([]Key, error) {
	keys := make([]Key, 0, len(cfg.Keys))
	for _, kc := range cfg.Keys {
		value, err := r.Resolve(ctx, kc.Key)
		if err != nil {
			return nil, fmt.Errorf("auth key %q: %w", kc.Name, err)
		}
		keys = append(keys, Key{Name: kc.Name, Value: value, Disabled: kc.Disabled})
	}
	return keys, nil
}
