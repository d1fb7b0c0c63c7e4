package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"oqs-hq/chatrelay/pkg/providers"
)

// ErrUnknownBackend is returned when a request names a backend that is not configured.
var ErrUnknownBackend = errors.New("unknown backend")

// Manager holds the configured adapters and knows which one is the default.
// Adapters are registered at startup; lookups are safe for concurrent use.
type Manager struct {
	adapters    map[string]providers.Adapter
	configs     map[string]providers.BackendConfig
	defaultName string
	mu          sync.RWMutex
}

// NewManager creates an empty manager whose default backend is defaultName.
func NewManager(defaultName string) *Manager {
	return &Manager{
		adapters:    make(map[string]providers.Adapter),
		configs:     make(map[string]providers.BackendConfig),
		defaultName: defaultName,
	}
}

// Add creates an adapter from cfg and registers it.
func (m *Manager) Add(cfg providers.BackendConfig) error {
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return err
	}
	m.Register(adapter, cfg)
	return nil
}

// Register adds an already constructed adapter together with the
// configuration it was built from, replacing (and closing) any adapter with
// the same name.
func (m *Manager) Register(adapter providers.Adapter, cfg providers.BackendConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.adapters[adapter.Name()]; ok {
		slog.Warn("replacing existing backend", "backend", adapter.Name())
		_ = existing.Close()
	}
	m.adapters[adapter.Name()] = adapter
	m.configs[adapter.Name()] = cfg

	slog.Info("backend registered",
		"backend", adapter.Name(),
		"type", adapter.Type(),
		"total_backends", len(m.adapters),
	)
}

// LoadFromConfig registers every backend in cfgs. It stops at the first error.
func (m *Manager) LoadFromConfig(cfgs []providers.BackendConfig) error {
	for _, cfg := range cfgs {
		if err := m.Add(cfg); err != nil {
			return err
		}
	}
	if _, err := m.Get(""); err != nil {
		return fmt.Errorf("default backend %q: %w", m.defaultName, err)
	}
	return nil
}

// Get returns the adapter called name, or the default adapter when name is empty.
func (m *Manager) Get(name string) (providers.Adapter, error) {
	if name == "" {
		name = m.defaultName
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	adapter, ok := m.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return adapter, nil
}

// Lookup is Get plus the backend's configuration.
func (m *Manager) Lookup(name string) (providers.Adapter, providers.BackendConfig, error) {
	if name == "" {
		name = m.defaultName
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	adapter, ok := m.adapters[name]
	if !ok {
		return nil, providers.BackendConfig{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return adapter, m.configs[name], nil
}

// DefaultName returns the name of the default backend.
func (m *Manager) DefaultName() string {
	return m.defaultName
}

// Names returns the registered backend names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namesLocked()
}

// Adapters returns a snapshot of the registered adapters.
func (m *Manager) Adapters() []providers.Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]providers.Adapter, 0, len(m.adapters))
	for _, name := range m.namesLocked() {
		out = append(out, m.adapters[name])
	}
	return out
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every adapter.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close backend %q: %w", name, err))
		}
	}
	m.adapters = make(map[string]providers.Adapter)
	m.configs = make(map[string]providers.BackendConfig)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("backend manager closed")
	return nil
}

// HealthSummary returns the health of every backend.
func (m *Manager) HealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		Total:   len(m.adapters),
		Details: make(map[string]providers.Health, len(m.adapters)),
	}
	for name, adapter := range m.adapters {
		h := adapter.Health()
		summary.Details[name] = h
		if h.Healthy {
			summary.Healthy++
		}
	}
	summary.Unhealthy = summary.Total - summary.Healthy
	return summary
}

// HealthSummary provides an overview of backend health.
type HealthSummary struct {
	Total     int                         `json:"total"`
	Healthy   int                         `json:"healthy"`
	Unhealthy int                         `json:"unhealthy"`
	Details   map[string]providers.Health `json:"details"`
}
