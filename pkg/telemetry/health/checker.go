package health

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// Check statuses.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
)

// Overall statuses.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message provides additional context (usually for unhealthy status)
	Message string `json:"message,omitempty"`

	// Duration is how long the check took
	Duration time.Duration `json:"duration_ms,omitempty"`

	// CheckedAt is when the check finished.
	CheckedAt time.Time `json:"checked_at"`
}

// HealthStatus represents the overall health status of the system.
type HealthStatus struct {
	// Status is the overall status: "ok", "ready", "degraded", "unhealthy"
	Status string `json:"status"`

	// Checks contains the status of individual components (for readiness)
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the health check was performed
	Timestamp time.Time `json:"timestamp"`
}

// Checker runs named checks (one per backend) and keeps their last results.
// Results are refreshed on a schedule and on demand.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	results map[string]CheckResult

	// Timeout for individual checks
	checkTimeout time.Duration

	metrics *metrics.Collector
	logger  *slog.Logger
}

// ErrCheckTimeout is reported when a health check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check. m may be nil.
func New(checkTimeout time.Duration, m *metrics.Collector) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		results:      make(map[string]CheckResult),
		checkTimeout: checkTimeout,
		metrics:      m,
		logger:       slog.Default().With("component", "health"),
	}
}

// RegisterCheck registers a health check function for a named component.
// If a check with the same name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// RegisterBackends registers the probe of every adapter under its backend name.
func (c *Checker) RegisterBackends(adapters []providers.Adapter) {
	for _, a := range adapters {
		c.RegisterCheck(a.Name(), a.HealthCheck)
	}
}

// UnregisterCheck removes a health check and its last result.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
	delete(c.results, name)
}

// ListChecks returns the names of all registered health checks, sorted.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every registered check concurrently, stores the results and
// updates the backend_up gauge.
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		name, check := name, check
		wg.Add(1)
		go func() {
			defer wg.Done()

			result := c.runCheck(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}()
	}

	wg.Wait()

	c.mu.Lock()
	for name, result := range results {
		if prev, ok := c.results[name]; ok && prev.Status != result.Status {
			c.logger.Info("backend health changed",
				"backend", name,
				"status", result.Status,
				"message", result.Message,
			)
		}
		c.results[name] = result
	}
	c.mu.Unlock()

	for name, result := range results {
		c.metrics.SetBackendUp(name, result.Status == StatusOK)
	}

	return results
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		result := CheckResult{Status: StatusOK, Duration: time.Since(start), CheckedAt: time.Now()}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
		}
		return result

	case <-checkCtx.Done():
		return CheckResult{
			Status:    StatusUnhealthy,
			Message:   ErrCheckTimeout.Error(),
			Duration:  time.Since(start),
			CheckedAt: time.Now(),
		}
	}
}

// Results returns a copy of the last stored results.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CheckResult, len(c.results))
	for name, r := range c.results {
		out[name] = r
	}
	return out
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// CheckReadiness aggregates the last results, running the checks first if
// they have never run. The system is ready when every check passes,
// degraded when at least one passes, and unhealthy when none does.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	results := c.Results()
	if len(results) < len(c.ListChecks()) {
		results = c.Run(ctx)
	}

	status := StatusReady
	if len(results) > 0 {
		healthy := 0
		for _, r := range results {
			if r.Status == StatusOK {
				healthy++
			}
		}
		switch {
		case healthy == 0:
			status = StatusUnhealthy
		case healthy < len(results):
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// Schedule registers a periodic Run with s.
func (c *Checker) Schedule(s *scheduler.Scheduler, spec string) error {
	return s.Add("backend-health", spec, func(ctx context.Context) {
		c.Run(ctx)
	})
}
