package prompt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a change is applied.
const DefaultDebounceInterval = 100 * time.Millisecond

// Watch reloads the prompt whenever its file changes. It blocks until ctx
// is done. The parent directory is watched so editors that replace the file
// (write to a temp file, then rename) are picked up as well.
func (s *Source) Watch(ctx context.Context, debounce time.Duration) error {
	if s.path == "" {
		return errors.New("static prompt source cannot be watched")
	}
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", s.path, err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(target), err)
	}

	d := NewDebouncer(debounce)
	defer d.Stop()

	s.logger.Info("system prompt watcher started", "path", s.path, "debounce_ms", debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("system prompt watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}

			s.logger.Debug("system prompt file event", "path", event.Name, "op", event.Op.String())
			d.Trigger(func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("system prompt reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			s.logger.Error("system prompt watcher error", "error", err)
		}
	}
}

// Debouncer collects rapid events and runs the last callback after a quiet
// period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
