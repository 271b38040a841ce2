package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the shared gate database in WAL mode.
//
// The gate runs as short-lived concurrent processes sharing this file, so
// every transaction starts IMMEDIATE (_txlock) to take the write lock up
// front, and busy_timeout bounds how long a caller waits on a lock held
// by another process before surfacing a store-busy error.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: exec %q: %w", p, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cost_ledger (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		ts            INTEGER NOT NULL,
		date          TEXT NOT NULL,
		session_id    TEXT NOT NULL,
		agent         TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_cents    INTEGER NOT NULL CHECK (cost_cents >= 0)
	);

	CREATE TABLE IF NOT EXISTS cost_reservations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		ts         INTEGER NOT NULL,
		date       TEXT NOT NULL,
		session_id TEXT NOT NULL,
		agent      TEXT NOT NULL DEFAULT '',
		cost_cents INTEGER NOT NULL CHECK (cost_cents >= 0)
	);

	CREATE TABLE IF NOT EXISTS rate_calls (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		ts        INTEGER NOT NULL,
		agent     TEXT NOT NULL,
		operation TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_date ON cost_ledger(date);
	CREATE INDEX IF NOT EXISTS idx_ledger_session ON cost_ledger(session_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_ts ON cost_reservations(ts);
	CREATE INDEX IF NOT EXISTS idx_rate_agent_ts ON rate_calls(agent, ts);
	`
	_, err := db.Exec(schema)
	return err
}
