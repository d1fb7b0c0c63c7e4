package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"oqs-hq/chatrelay/pkg/relay"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

// RecorderConfig contains configuration for the ledger recorder.
type RecorderConfig struct {
	// QueueSize is the capacity of the write queue.
	// Default: 1000
	QueueSize int

	// WriteTimeout bounds a single insert.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// Recorder writes relay results to storage on a background goroutine.
// Observe never blocks the request path: when the queue is full the record
// is dropped and counted.
type Recorder struct {
	storage Storage
	config  RecorderConfig
	queue   chan *Record
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewRecorder creates a recorder and starts its worker. m may be nil.
func NewRecorder(storage Storage, cfg RecorderConfig, m *metrics.Collector) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		queue:   make(chan *Record, cfg.QueueSize),
		done:    make(chan struct{}),
		metrics: m,
		logger:  slog.Default().With("component", "ledger.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("ledger recorder initialized",
		"queue_size", cfg.QueueSize,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// Observe implements relay.Observer.
func (r *Recorder) Observe(ctx context.Context, res relay.Result) {
	r.Enqueue(ctx, FromResult(res))
}

// Enqueue queues rec for writing. It reports whether the record was accepted.
func (r *Recorder) Enqueue(ctx context.Context, rec *Record) bool {
	select {
	case <-r.done:
		r.logger.WarnContext(ctx, "recorder shut down, dropping record", "record_id", rec.ID)
		r.metrics.RecordLedgerDropped()
		return false
	default:
	}

	select {
	case r.queue <- rec:
		return true
	default:
		r.logger.WarnContext(ctx, "ledger queue full, dropping record",
			"record_id", rec.ID,
			"queue_size", r.config.QueueSize,
		)
		r.metrics.RecordLedgerDropped()
		return false
	}
}

// FromResult converts a relay result into a ledger record.
func FromResult(res relay.Result) *Record {
	return &Record{
		ID:         res.ID,
		RequestID:  res.RequestID,
		Client:     res.Client,
		Time:       res.Started.UTC(),
		Mode:       res.Mode,
		Backend:    res.Backend,
		Model:      res.Model,
		Provider:   res.Provider,
		Status:     string(res.Status),
		DoneReason: res.DoneReason,
		Fragments:  res.Fragments,
		Heartbeats: res.Heartbeats,
		Attempts:   res.Attempts,
		LatencyMs:  res.Latency.Milliseconds(),
	}
}

// Close stops accepting records, drains the queue and waits for pending
// writes. It does not close the storage.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.logger.Info("shutting down ledger recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("ledger recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)

		case <-r.done:
			r.logger.Info("draining ledger queue before shutdown", "pending_count", len(r.queue))
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store ledger record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("ledger record stored",
		"record_id", rec.ID,
		"request_id", rec.RequestID,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow ledger write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

var _ relay.Observer = (*Recorder)(nil)
