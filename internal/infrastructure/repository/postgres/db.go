package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables. Safe to run from multiple processes; the
// advisory lock serializes bootstrap DDL across worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	run_id TEXT,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	checksum TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status_created ON documents(status, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	order_index INTEGER NOT NULL,
	page_number INTEGER,
	heading TEXT,
	body TEXT NOT NULL,
	citation_key TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, order_index)
);

CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL UNIQUE REFERENCES documents(id),
	run_id TEXT,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	reliability_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS research_runs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	brief TEXT NOT NULL,
	rewritten_prompt TEXT,
	status TEXT NOT NULL,
	phase TEXT NOT NULL,
	background_job_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES research_runs(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_run_created ON conversation_turns(run_id, created_at);

CREATE TABLE IF NOT EXISTS report_sections (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES research_runs(id),
	section_type TEXT NOT NULL,
	content TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, section_type)
);

CREATE TABLE IF NOT EXISTS progress_events (
	id TEXT PRIMARY KEY,
	run_id TEXT,
	document_id TEXT,
	phase TEXT NOT NULL,
	message TEXT NOT NULL,
	progress INTEGER NOT NULL,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_run_created ON progress_events(run_id, created_at);

CREATE TABLE IF NOT EXISTS methodology_entries (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	action TEXT NOT NULL,
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_methodology_run_created ON methodology_entries(run_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
