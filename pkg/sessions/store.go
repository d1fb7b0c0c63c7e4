// Package sessions keeps bounded conversation history per session ID.
//
// The store holds at most MaxSessions sessions, evicting the least recently
// used one, and at most MaxTurns messages per session, dropping the oldest.
// Sessions idle for longer than IdleTTL are removed by a scheduled sweep.
// Only successful turns are appended; degraded replies never enter history.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

type session struct {
	messages []providers.Message
	lastUsed time.Time
}

// Store is a bounded, concurrency-safe session history store.
type Store struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *session]
	maxTurns int
	idleTTL  time.Duration
	metrics  *metrics.Collector
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a store from cfg. m may be nil.
func New(cfg config.SessionsConfig, m *metrics.Collector) (*Store, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = config.DefaultMaxSessions
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = config.DefaultMaxTurns
	}

	s := &Store{
		maxTurns: cfg.MaxTurns,
		idleTTL:  cfg.IdleTTL,
		metrics:  m,
		logger:   slog.Default().With("component", "sessions"),
		now:      time.Now,
	}

	cache, err := lru.NewWithEvict(cfg.MaxSessions, func(id string, _ *session) {
		s.logger.Debug("session evicted", "session_id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// History returns a copy of the messages of session id, oldest first.
func (s *Store) History(id string) []providers.Message {
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.cache.Get(id)
	if !ok {
		return nil
	}
	sess.lastUsed = s.now()
	return append([]providers.Message(nil), sess.messages...)
}

// Append adds msgs to session id, creating it if needed, and trims the
// session to the newest MaxTurns messages.
func (s *Store) Append(id string, msgs ...providers.Message) {
	if id == "" || len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	sess, ok := s.cache.Get(id)
	if !ok {
		sess = &session{}
		s.cache.Add(id, sess)
	}
	sess.lastUsed = s.now()
	sess.messages = append(sess.messages, msgs...)
	if over := len(sess.messages) - s.maxTurns; over > 0 {
		sess.messages = append([]providers.Message(nil), sess.messages[over:]...)
	}
	n := s.cache.Len()
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
}

// Delete removes session id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	s.cache.Remove(id)
	n := s.cache.Len()
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Sweep removes sessions idle for longer than IdleTTL and returns how many
// were removed. A zero IdleTTL disables the sweep.
func (s *Store) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for _, id := range s.cache.Keys() {
		sess, ok := s.cache.Peek(id)
		if ok && sess.lastUsed.Before(cutoff) {
			s.cache.Remove(id)
			removed++
		}
	}
	n := s.cache.Len()
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
	if removed > 0 {
		s.logger.Info("idle sessions removed", "removed", removed, "remaining", n)
	}
	return removed
}

// Schedule registers the idle sweep with sched.
func (s *Store) Schedule(sched *scheduler.Scheduler, spec string) error {
	return sched.Add("session-sweep", spec, func(context.Context) {
		s.Sweep()
	})
}
