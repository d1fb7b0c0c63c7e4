package providers

import (
	"log/slog"
	"time"
)

// unhealthyThreshold is the number of consecutive failed probes after which
// a backend is reported unhealthy.
const unhealthyThreshold = 3

// Health is a backend's last known health.
type Health struct {
	Healthy             bool          `json:"healthy"`
	LastCheck           time.Time     `json:"last_check"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Latency             time.Duration `json:"latency_ns"`
}

// Health returns the last recorded health status.
func (p *HTTPProvider) Health() Health {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// RecordHealth stores the result of a probe.
func (p *HTTPProvider) RecordHealth(err error, latency time.Duration) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	p.health.LastCheck = time.Now()
	p.health.Latency = latency

	if err == nil {
		if !p.health.Healthy {
			slog.Info("backend marked healthy",
				"backend", p.config.Name,
				"previous_failures", p.health.ConsecutiveFailures,
			)
		}
		p.health.Healthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = ""
		return
	}

	p.health.ConsecutiveFailures++
	p.health.LastError = err.Error()
	if p.health.Healthy && p.health.ConsecutiveFailures >= unhealthyThreshold {
		p.health.Healthy = false
		slog.Warn("backend marked unhealthy",
			"backend", p.config.Name,
			"consecutive_failures", p.health.ConsecutiveFailures,
			"error", err,
		)
	}
}
