// Package ledger records one metadata row per relayed request: mode,
// backend, model, provenance, status, terminal reason, fragment and
// heartbeat counts, attempts and latency. Conversation text is never stored.
//
// Records are written asynchronously through a bounded queue (Recorder), so
// a slow database never delays a reply; overflow is dropped and counted in
// chatrelay_ledger_dropped_total. Storage is database/sql with three
// drivers: "sqlite" (modernc.org/sqlite, pure Go, the default), "sqlite3"
// (github.com/mattn/go-sqlite3, cgo) and "pgx" (PostgreSQL via
// github.com/jackc/pgx/v5/stdlib). A Pruner removes records past the
// retention period on a cron schedule.
package ledger

import (
	"context"
	"errors"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

// Ledger bundles the storage, the asynchronous recorder and the pruner.
type Ledger struct {
	Storage  Storage
	Recorder *Recorder
	Pruner   *Pruner

	retentionSchedule string
}

// Open opens the configured storage and starts the recorder.
func Open(ctx context.Context, cfg config.LedgerConfig, m *metrics.Collector) (*Ledger, error) {
	storage, err := OpenSQL(ctx, SQLConfig{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	return New(storage, cfg, m), nil
}

// New wraps an already opened storage.
func New(storage Storage, cfg config.LedgerConfig, m *metrics.Collector) *Ledger {
	return &Ledger{
		Storage: storage,
		Recorder: NewRecorder(storage, RecorderConfig{
			QueueSize:    cfg.QueueSize,
			WriteTimeout: cfg.WriteTimeout,
		}, m),
		Pruner:            NewPruner(storage, cfg.RetentionDays),
		retentionSchedule: cfg.RetentionSchedule,
	}
}

// Schedule registers retention pruning with sched.
func (l *Ledger) Schedule(sched *scheduler.Scheduler) error {
	return l.Pruner.Schedule(sched, l.retentionSchedule)
}

// Close drains the recorder and closes the storage.
func (l *Ledger) Close() error {
	return errors.Join(l.Recorder.Close(), l.Storage.Close())
}
