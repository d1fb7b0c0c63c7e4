package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"oqs-hq/chatrelay/pkg/config"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered list of providers. The first
// provider holding a value wins; ErrNotFound falls through to the next one.
type Manager struct {
	providers []Provider
	cache     *expirable.LRU[string, string]

	mu        sync.Mutex
	listeners []func()
}

// NewManager creates a manager. A zero ttl caches values until they are
// invalidated.
func NewManager(cacheSize int, ttl time.Duration, providers ...Provider) *Manager {
	return &Manager{
		providers: providers,
		cache:     expirable.NewLRU[string, string](cacheSize, nil, ttl),
	}
}

// FromConfig builds the providers described by cfg: the directory (when
// set) ahead of the environment.
func FromConfig(cfg config.SecretsConfig) (*Manager, error) {
	var providers []Provider
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewManager(cfg.CacheSize, cfg.CacheTTL, providers...), nil
}

// Get returns the value of the named secret.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if v, ok := m.cache.Get(name); ok {
		return v, nil
	}

	var lastErr error
	for _, p := range m.providers {
		v, err := p.Lookup(ctx, name)
		if err == nil {
			m.cache.Add(name, v)
			slog.Debug("secret resolved", "secret", redact(name), "provider", p.Kind())
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return "", lastErr
}

// Resolve replaces every ${secret:name} reference in s. Strings without
// references are returned unchanged. All unresolved names are reported
// together.
func (m *Manager) Resolve(ctx context.Context, s string) (string, error) {
	if !HasReference(s) {
		return s, nil
	}

	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := m.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return out, nil
}

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}

// Invalidate drops a cached value. An empty name drops every value.
func (m *Manager) Invalidate(name string) {
	if name == "" {
		m.cache.Purge()
		return
	}
	m.cache.Remove(name)
}

// OnChange registers fn to run after a watched secret changes.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Watchable reports whether any provider can watch for changes.
func (m *Manager) Watchable() bool {
	for _, p := range m.providers {
		if _, ok := p.(Watcher); ok {
			return true
		}
	}
	return false
}

// Watch runs every watching provider until ctx is done. Changed secrets are
// invalidated and OnChange listeners are notified.
func (m *Manager) Watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range m.providers {
		w, ok := p.(Watcher)
		if !ok {
			continue
		}
		g.Go(func() error {
			return w.Watch(ctx, m.changed)
		})
	}
	return g.Wait()
}

func (m *Manager) changed(name string) {
	m.Invalidate(name)

	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// redact keeps the first and last two characters of long names.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
