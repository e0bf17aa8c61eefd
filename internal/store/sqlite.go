package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		collection  TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		step_key    TEXT NOT NULL DEFAULT '',
		scope_key   TEXT NOT NULL DEFAULT '',
		version     INTEGER NOT NULL DEFAULT 1,
		content     BLOB,
		sidecar     BLOB,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		approved_at TEXT,
		UNIQUE (collection, project_id, step_key, scope_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_project ON records (project_id, collection)`,
	`CREATE INDEX IF NOT EXISTS idx_records_step ON records (project_id, step_key)`,
}

// OpenSQLite opens (creating if needed) a sqlite database at path and
// migrates the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &SQLStore{db: db, driver: "sqlite", rebind: rebindNone}
	if err := s.migrate(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
