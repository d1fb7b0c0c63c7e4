package ledger

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// schema holds the statements that create the ledger tables. Timestamps
// are stored as Unix milliseconds so the same schema works on SQLite and
// PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    mode TEXT NOT NULL,
    backend TEXT NOT NULL,
    model TEXT NOT NULL,
    provider TEXT NOT NULL,
    status TEXT NOT NULL,
    done_reason TEXT NOT NULL DEFAULT '',
    fragments INTEGER NOT NULL DEFAULT 0,
    heartbeats INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    latency_ms BIGINT NOT NULL DEFAULT 0,
    client TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_created_at ON ledger (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_backend_status ON ledger (backend, status)`,
	`CREATE TABLE IF NOT EXISTS ledger_schema_version (
    version INTEGER PRIMARY KEY
)`,
}

const insertColumns = `id, request_id, created_at, mode, backend, model, provider, status, done_reason, fragments, heartbeats, attempts, latency_ms, client`
