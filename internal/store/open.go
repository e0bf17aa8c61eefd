package store

import (
	"context"
	"fmt"
	"strings"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a driver.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open constructs the store named by opts.Driver. An empty driver selects
// sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	switch driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q: must be one of: memory, sqlite, postgres", opts.Driver)
	}
}
