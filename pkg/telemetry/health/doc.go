// Package health probes the configured backends and serves the readiness
// and version endpoints.
//
// A Checker holds one check per backend (the adapter's HealthCheck: HEAD
// /api/tags for Ollama, GET /models for OpenAI-compatible backends, always
// healthy for echo). Run executes all checks concurrently with a per-check
// timeout, stores the results and updates the chatrelay_backend_up gauge.
// Schedule runs it periodically:
//
//	checker := health.New(cfg.Health.CheckTimeout, collector)
//	checker.RegisterBackends(manager.Adapters())
//	sched := scheduler.New("scheduler")
//	_ = checker.Schedule(sched, cfg.Health.Schedule)
//
// # Readiness
//
// /ready answers 200 while at least one backend is healthy ("ready" when all
// are, "degraded" otherwise) and 503 when none is. An echo-only deployment is
// always ready.
package health
