package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	_ "github.com/mattn/go-sqlite3"    // cgo SQLite driver "sqlite3"
	_ "modernc.org/sqlite"             // pure Go SQLite driver "sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLConfig contains configuration for the SQL storage backend.
type SQLConfig struct {
	// Driver is "sqlite" (pure Go), "sqlite3" (cgo) or "pgx" (PostgreSQL).
	Driver string

	// DSN is the data source name. For SQLite drivers it is a file path.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1 for SQLite, 10 for PostgreSQL
	MaxOpenConns int

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLStorage implements Storage on database/sql.
type SQLStorage struct {
	db     *sql.DB
	config SQLConfig
	logger *slog.Logger
}

// OpenSQL opens the database, creates the schema and verifies its version.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLStorage, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverSQLite3, DriverPostgres:
	default:
		return nil, NewStorageError(cfg.Driver, "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
		if cfg.isSQLite() {
			cfg.MaxOpenConns = 1
		}
	}

	if cfg.isSQLite() && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, NewStorageError(cfg.Driver, "mkdir", err)
			}
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, NewStorageError(cfg.Driver, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLStorage{
		db:     db,
		config: cfg,
		logger: slog.Default().With("component", "ledger.storage", "driver", cfg.Driver),
	}

	if err := s.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("ledger storage initialized", "max_open_conns", cfg.MaxOpenConns)
	return s, nil
}

func (c SQLConfig) isSQLite() bool {
	return c.Driver == DriverSQLite || c.Driver == DriverSQLite3
}

func (s *SQLStorage) initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError(s.config.Driver, "ping", err)
	}

	if s.config.isSQLite() {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError(s.config.Driver, "enable_wal", err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
			return NewStorageError(s.config.Driver, "set_busy_timeout", err)
		}
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return NewStorageError(s.config.Driver, "create_schema", err)
		}
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM ledger_schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO ledger_schema_version (version) VALUES ("+s.placeholder(1)+")", SchemaVersion); err != nil {
			return NewStorageError(s.config.Driver, "insert_schema_version", err)
		}
	case err != nil:
		return NewStorageError(s.config.Driver, "get_schema_version", err)
	case version != SchemaVersion:
		return NewStorageError(s.config.Driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the driver.
func (s *SQLStorage) placeholder(n int) string {
	if s.config.Driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStorage) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = s.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// Store implements Storage.
func (s *SQLStorage) Store(ctx context.Context, r *Record) error {
	query := "INSERT INTO ledger (" + insertColumns + ") VALUES (" + s.placeholders(14) + ")"
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.RequestID, r.Time.UnixMilli(), r.Mode, r.Backend, r.Model, r.Provider,
		r.Status, r.DoneReason, r.Fragments, r.Heartbeats, r.Attempts, r.LatencyMs, r.Client,
	)
	if err != nil {
		return NewStorageError(s.config.Driver, "store", err)
	}
	return nil
}

// Query implements Storage.
func (s *SQLStorage) Query(ctx context.Context, q Query) ([]*Record, error) {
	where, args := s.buildWhereClause(q)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := "SELECT " + insertColumns + " FROM ledger"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC LIMIT " + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r  Record
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &ms, &r.Mode, &r.Backend, &r.Model, &r.Provider,
			&r.Status, &r.DoneReason, &r.Fragments, &r.Heartbeats, &r.Attempts, &r.LatencyMs, &r.Client); err != nil {
			return nil, NewStorageError(s.config.Driver, "scan", err)
		}
		r.Time = time.UnixMilli(ms).UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}
	return out, nil
}

// Count implements Storage.
func (s *SQLStorage) Count(ctx context.Context, q Query) (int64, error) {
	where, args := s.buildWhereClause(q)
	query := "SELECT COUNT(*) FROM ledger"
	if where != "" {
		query += " WHERE " + where
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, NewStorageError(s.config.Driver, "count", err)
	}
	return n, nil
}

// DeleteBefore implements Storage.
func (s *SQLStorage) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ledger WHERE created_at < "+s.placeholder(1), t.UnixMilli())
	if err != nil {
		return 0, NewStorageError(s.config.Driver, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError(s.config.Driver, "delete", err)
	}
	return n, nil
}

// Close implements Storage.
func (s *SQLStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError(s.config.Driver, "close", err)
	}
	s.logger.Info("ledger storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause (without the keyword) and its
// arguments from q.
func (s *SQLStorage) buildWhereClause(q Query) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, s.placeholder(len(args))))
	}

	if !q.Since.IsZero() {
		add("created_at >= %s", q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		add("created_at <= %s", q.Until.UnixMilli())
	}
	if q.Backend != "" {
		add("backend = %s", q.Backend)
	}
	if q.Status != "" {
		add("status = %s", q.Status)
	}
	if q.Client != "" {
		add("client = %s", q.Client)
	}

	return strings.Join(conditions, " AND "), args
}

var _ Storage = (*SQLStorage)(nil)
