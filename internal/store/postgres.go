package store

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		collection  TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		step_key    TEXT NOT NULL DEFAULT '',
		scope_key   TEXT NOT NULL DEFAULT '',
		version     INTEGER NOT NULL DEFAULT 1,
		content     JSONB,
		sidecar     JSONB,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		approved_at TEXT,
		UNIQUE (collection, project_id, step_key, scope_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_project ON records (project_id, collection)`,
	`CREATE INDEX IF NOT EXISTS idx_records_step ON records (project_id, step_key)`,
}

// OpenPostgres connects through the pgx database/sql driver and migrates
// the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &SQLStore{db: db, driver: "postgres", rebind: rebindDollar}
	if err := s.migrate(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
