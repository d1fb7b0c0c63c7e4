package ledger

import (
	"context"
	"log/slog"
	"time"

	"oqs-hq/chatrelay/pkg/scheduler"
)

// Pruner deletes records older than the retention period.
type Pruner struct {
	storage       Storage
	retentionDays int
	logger        *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewPruner creates a pruner. retentionDays of 0 keeps records forever.
func NewPruner(storage Storage, retentionDays int) *Pruner {
	return &Pruner{
		storage:       storage,
		retentionDays: retentionDays,
		logger:        slog.Default().With("component", "ledger.retention"),
		now:           time.Now,
	}
}

// Prune deletes expired records and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.retentionDays)
	deleted, err := p.storage.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		p.logger.Info("ledger records pruned",
			"deleted_count", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return deleted, nil
}

// Schedule registers periodic pruning with sched.
func (p *Pruner) Schedule(sched *scheduler.Scheduler, spec string) error {
	return sched.Add("ledger-retention", spec, func(ctx context.Context) {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled pruning failed", "error", err)
		}
	})
}
