// Package metrics provides Prometheus metrics for the relay.
//
// # Metrics
//
// All names carry the configured namespace (default "chatrelay"):
//
//   - requests_total{backend,mode,status}
//   - request_duration_seconds{backend,mode}
//   - model_requests_total{backend,model}
//   - degraded_total{backend,reason}
//   - retries_total{backend,reason}
//   - heartbeats_total{backend}, fragments_total{backend}
//   - upstream_latency_seconds{backend,operation}
//   - stream_duration_seconds{backend}
//   - backend_up{backend}
//   - active_sessions, ledger_dropped_total
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	collector.RecordRequest("ollama", "llama3.2:1b", "stream", "ok", time.Second)
//
// A nil *Collector is valid and records nothing.
package metrics
