package ledger

import (
	"context"
	"time"
)

// Record is one relayed request. It carries metadata only; prompts and
// replies are never persisted.
type Record struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Client     string    `json:"client,omitempty"`
	Time       time.Time `json:"time"`
	Mode       string    `json:"mode"`
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Status     string    `json:"status"`
	DoneReason string    `json:"done_reason,omitempty"`
	Fragments  int       `json:"fragments"`
	Heartbeats int       `json:"heartbeats"`
	Attempts   int       `json:"attempts"`
	LatencyMs  int64     `json:"latency_ms"`
}

// Query filters records. Zero values match everything.
type Query struct {
	Since   time.Time
	Until   time.Time
	Backend string
	Status  string
	Client  string

	// Limit caps the number of records returned, newest first. 0 means 100.
	Limit int
}

// DefaultQueryLimit is the number of records returned when Query.Limit is 0.
const DefaultQueryLimit = 100

// Storage persists records.
type Storage interface {
	// Store persists a single record.
	Store(ctx context.Context, r *Record) error

	// Query returns matching records, newest first.
	Query(ctx context.Context, q Query) ([]*Record, error)

	// Count returns the number of matching records, ignoring Limit.
	Count(ctx context.Context, q Query) (int64, error)

	// DeleteBefore removes records older than t and returns how many were removed.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	// Close releases resources held by the storage backend.
	Close() error
}
