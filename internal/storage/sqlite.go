package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/portwatch/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS failures (
    host                 TEXT    NOT NULL,
    port                 INTEGER NOT NULL,
    consecutive_failures INTEGER NOT NULL CHECK(consecutive_failures > 0),
    first_failed_at      TEXT    NOT NULL,
    last_failed_at       TEXT    NOT NULL,
    PRIMARY KEY (host, port)
);
`

// FailureRecord is the persisted failure streak of one endpoint. A record
// exists only while a streak is open.
type FailureRecord struct {
	Endpoint            config.Endpoint
	ConsecutiveFailures int
	FirstFailedAt       time.Time
	LastFailedAt        time.Time
}

// DB wraps a SQLite database holding failure records.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" databases whole.
	db.SetMaxOpenConns(1)

	// synchronous=FULL: a mutation is on disk before the statement returns.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the failure record for ep, or nil if the endpoint has no open
// failure streak.
func (d *DB) Get(ctx context.Context, ep config.Endpoint) (*FailureRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT host, port, consecutive_failures, first_failed_at, last_failed_at FROM failures WHERE host = ? AND port = ?`,
		ep.Host, ep.Port,
	)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying failure record for %s: %w", ep, err)
	}
	return r, nil
}

// RecordFailure creates the record with a count of 1, or increments an
// existing one, and returns the new count.
func (d *DB) RecordFailure(ctx context.Context, ep config.Endpoint) (int, error) {
	now := d.now().UTC().Format(time.RFC3339Nano)
	var count int
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO failures (host, port, consecutive_failures, first_failed_at, last_failed_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (host, port) DO UPDATE SET
			consecutive_failures = consecutive_failures + 1,
			last_failed_at = excluded.last_failed_at
		RETURNING consecutive_failures`,
		ep.Host, ep.Port, now, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", ep, err)
	}
	return count, nil
}

// Clear deletes the record for ep. Clearing an absent record is a no-op.
func (d *DB) Clear(ctx context.Context, ep config.Endpoint) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM failures WHERE host = ? AND port = ?`,
		ep.Host, ep.Port,
	)
	if err != nil {
		return fmt.Errorf("clearing failure record for %s: %w", ep, err)
	}
	return nil
}

// All returns every open failure record ordered by host and port.
func (d *DB) All(ctx context.Context) ([]FailureRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT host, port, consecutive_failures, first_failed_at, last_failed_at FROM failures ORDER BY host, port`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying failure records: %w", err)
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning failure record: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failure records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*FailureRecord, error) {
	var r FailureRecord
	var first, last string
	err := row.Scan(&r.Endpoint.Host, &r.Endpoint.Port, &r.ConsecutiveFailures, &first, &last)
	if err != nil {
		return nil, err
	}
	if r.FirstFailedAt, err = parseTime(first); err != nil {
		return nil, err
	}
	if r.LastFailedAt, err = parseTime(last); err != nil {
		return nil, err
	}
	return &r, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
