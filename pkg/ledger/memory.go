package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements Storage in memory. It is used in tests and by
// dry runs.
type MemoryStorage struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*Record)}
}

// Store implements Storage.
func (s *MemoryStorage) Store(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *r
	s.records[r.ID] = &c
	return nil
}

// Query implements Storage.
func (s *MemoryStorage) Query(_ context.Context, q Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, r := range s.records {
		if matches(r, q) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Storage.
func (s *MemoryStorage) Count(_ context.Context, q Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if matches(r, q) {
			n++
		}
	}
	return n, nil
}

// DeleteBefore implements Storage.
func (s *MemoryStorage) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if r.Time.Before(t) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Close implements Storage.
func (s *MemoryStorage) Close() error { return nil }

func matches(r *Record, q Query) bool {
	if !q.Since.IsZero() && r.Time.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.Time.After(q.Until) {
		return false
	}
	if q.Backend != "" && r.Backend != q.Backend {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Client != "" && r.Client != q.Client {
		return false
	}
	return true
}

var _ Storage = (*MemoryStorage)(nil)
