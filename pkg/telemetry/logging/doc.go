// Package logging configures the process-wide log/slog logger.
//
// New returns a *slog.Logger whose handler adds request_id and session_id from
// the context of every record and masks secrets (api_key,
// authorization, bearer tokens). Components log through slog directly:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
//	ctx = logging.WithRequestID(ctx, id)
//	slog.InfoContext(ctx, "stream finished", "backend", "ollama", "latency_ms", 812)
package logging
