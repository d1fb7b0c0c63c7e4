// Package scheduler runs named background jobs on cron schedules. It backs
// the backend health probes, the idle session sweep and ledger retention.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a scheduled unit of work. It receives the context passed to Start.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner. Jobs are added before Start; a job that is
// still running when its next tick arrives is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	pending []pendingJob
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

type pendingJob struct {
	name string
	spec string
	job  Job
}

// New creates a scheduler whose log lines carry component.
func New(component string) *Scheduler {
	logger := slog.Default().With("component", component)
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Add registers job under name. spec is a standard 5-field cron expression
// or a descriptor such as "@every 30s". An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		s.logger.Info("schedule not configured, skipping job", "job", name)
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingJob{name: name, spec: spec, job: job})
	return nil
}

// Start schedules every added job and begins running them. The scheduler
// stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if len(s.pending) == 0 {
		return nil
	}

	for _, p := range s.pending {
		p := p
		id, err := s.cron.AddFunc(p.spec, func() { s.run(ctx, p.name, p.job) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", p.name, err)
		}
		s.entries[p.name] = id
		s.logger.Info("job scheduled", "job", p.name, "schedule", p.spec)
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	job(ctx)
	s.logger.Debug("job completed", "job", name, "duration_ms", time.Since(start).Milliseconds())
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next run time of the named job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}
