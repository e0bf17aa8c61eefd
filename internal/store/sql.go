package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLStore implements Store on top of database/sql. The sqlite and
// postgres drivers share it and differ only in DDL and placeholder style.
type SQLStore struct {
	db     *sql.DB
	driver string
	rebind func(string) string
}

var _ Store = (*SQLStore)(nil)

const recordColumns = "id, collection, project_id, step_key, scope_key, version, content, sidecar, created_at, updated_at, approved_at"

// Driver reports the backing driver name ("sqlite" or "postgres").
func (s *SQLStore) Driver() string { return s.driver }

// DB exposes the underlying handle for maintenance tasks and tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close implements Store.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key Key) (Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+recordColumns+" FROM records WHERE collection = ? AND project_id = ? AND step_key = ? AND scope_key = ?"),
		string(key.Collection), key.ProjectID, key.StepKey, key.ScopeKey,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("%s: get %s: %w", s.driver, key, err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, q Query) ([]Record, error) {
	if err := ValidateCollection(q.Collection); err != nil {
		return nil, err
	}
	clauses := []string{"collection = ?"}
	args := []any{string(q.Collection)}
	if q.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.StepKey != "" {
		clauses = append(clauses, "step_key = ?")
		args = append(args, q.StepKey)
	}
	if q.ScopeKey != "" {
		clauses = append(clauses, "scope_key = ?")
		args = append(args, q.ScopeKey)
	}
	query := "SELECT " + recordColumns + " FROM records WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY created_at, step_key, scope_key"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", s.driver, q.Collection, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", s.driver, q.Collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate %s: %w", s.driver, q.Collection, err)
	}
	return out, nil
}

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	rec = stamp(rec, timeNow())
	res, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (collection, project_id, step_key, scope_key) DO NOTHING"),
		recordArgs(rec)...,
	)
	if err != nil {
		return Record{}, fmt.Errorf("%s: insert %s: %w", s.driver, rec.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("%s: insert %s: rows affected: %w", s.driver, rec.Key(), err)
	}
	if n == 0 {
		return Record{}, alreadyExists(rec.Key())
	}
	return rec, nil
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE records SET version = ?, content = ?, sidecar = ?, updated_at = ?, approved_at = ? "+
			"WHERE collection = ? AND project_id = ? AND step_key = ? AND scope_key = ?"),
		rec.Version, nullableJSON(rec.Content), nullableJSON(rec.Sidecar), formatTime(timeNow()), nullableTime(rec.ApprovedAt),
		string(rec.Collection), rec.ProjectID, rec.StepKey, rec.ScopeKey,
	)
	if err != nil {
		return Record{}, fmt.Errorf("%s: update %s: %w", s.driver, rec.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("%s: update %s: rows affected: %w", s.driver, rec.Key(), err)
	}
	if n == 0 {
		return Record{}, notFound(rec.Key())
	}
	return s.Get(ctx, rec.Key())
}

// Upsert implements Store.
func (s *SQLStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	rec = stamp(rec, timeNow())
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (collection, project_id, step_key, scope_key) DO UPDATE SET "+
			"version = excluded.version, content = excluded.content, sidecar = excluded.sidecar, "+
			"updated_at = excluded.updated_at, approved_at = excluded.approved_at"),
		recordArgs(rec)...,
	)
	if err != nil {
		return Record{}, fmt.Errorf("%s: upsert %s: %w", s.driver, rec.Key(), err)
	}
	return s.Get(ctx, rec.Key())
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		"DELETE FROM records WHERE collection = ? AND project_id = ? AND step_key = ? AND scope_key = ?"),
		string(key.Collection), key.ProjectID, key.StepKey, key.ScopeKey,
	)
	if err != nil {
		return fmt.Errorf("%s: delete %s: %w", s.driver, key, err)
	}
	return nil
}

// DeleteProject implements Store.
func (s *SQLStore) DeleteProject(ctx context.Context, projectID string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM records WHERE project_id = ?"), projectID)
	if err != nil {
		return 0, fmt.Errorf("%s: delete project %s: %w", s.driver, projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: delete project %s: rows affected: %w", s.driver, projectID, err)
	}
	return int(n), nil
}

// migrate runs each statement; all statements are idempotent.
func (s *SQLStore) migrate(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.driver, err)
		}
	}
	return nil
}

// --- Row mapping ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		collection string
		content    []byte
		sidecar    []byte
		createdAt  string
		updatedAt  string
		approvedAt sql.NullString
	)
	if err := row.Scan(&rec.ID, &collection, &rec.ProjectID, &rec.StepKey, &rec.ScopeKey,
		&rec.Version, &content, &sidecar, &createdAt, &updatedAt, &approvedAt); err != nil {
		return Record{}, err
	}
	rec.Collection = Collection(collection)
	if len(content) > 0 {
		rec.Content = content
	}
	if len(sidecar) > 0 {
		rec.Sidecar = sidecar
	}
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Record{}, err
	}
	if approvedAt.Valid && approvedAt.String != "" {
		t, err := parseTime(approvedAt.String)
		if err != nil {
			return Record{}, err
		}
		rec.ApprovedAt = &t
	}
	return rec, nil
}

func recordArgs(rec Record) []any {
	return []any{
		rec.ID, string(rec.Collection), rec.ProjectID, rec.StepKey, rec.ScopeKey, rec.Version,
		nullableJSON(rec.Content), nullableJSON(rec.Sidecar),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), nullableTime(rec.ApprovedAt),
	}
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// rebindDollar rewrites ? placeholders to $1..$n for postgres.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rebindNone(query string) string { return query }
