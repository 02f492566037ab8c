// Package postgres stores failure records in PostgreSQL. It satisfies the
// same contract as the SQLite store for deployments that already run a
// database server.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazz-dev/portwatch/internal/config"
	"github.com/hazz-dev/portwatch/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS failures (
    host                 TEXT        NOT NULL,
    port                 INTEGER     NOT NULL,
    consecutive_failures INTEGER     NOT NULL CHECK (consecutive_failures > 0),
    first_failed_at      TIMESTAMPTZ NOT NULL,
    last_failed_at       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (host, port)
)`

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := p.Exec(ctx, schema); err != nil {
		p.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Get(ctx context.Context, ep config.Endpoint) (*storage.FailureRecord, error) {
	const q = `SELECT consecutive_failures, first_failed_at, last_failed_at FROM failures WHERE host=$1 AND port=$2`
	r := storage.FailureRecord{Endpoint: ep}
	err := s.pool.QueryRow(ctx, q, ep.Host, ep.Port).Scan(&r.ConsecutiveFailures, &r.FirstFailedAt, &r.LastFailedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying failure record for %s: %w", ep, err)
	}
	return &r, nil
}

func (s *Store) RecordFailure(ctx context.Context, ep config.Endpoint) (int, error) {
	const q = `
		INSERT INTO failures (host, port, consecutive_failures, first_failed_at, last_failed_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (host, port)
		DO UPDATE SET consecutive_failures = failures.consecutive_failures + 1,
		              last_failed_at = EXCLUDED.last_failed_at
		RETURNING consecutive_failures
	`
	var count int
	if err := s.pool.QueryRow(ctx, q, ep.Host, ep.Port, time.Now().UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", ep, err)
	}
	return count, nil
}

func (s *Store) Clear(ctx context.Context, ep config.Endpoint) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM failures WHERE host=$1 AND port=$2`, ep.Host, ep.Port); err != nil {
		return fmt.Errorf("clearing failure record for %s: %w", ep, err)
	}
	return nil
}

func (s *Store) All(ctx context.Context) ([]storage.FailureRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT host, port, consecutive_failures, first_failed_at, last_failed_at FROM failures ORDER BY host, port`)
	if err != nil {
		return nil, fmt.Errorf("querying failure records: %w", err)
	}
	defer rows.Close()

	var out []storage.FailureRecord
	for rows.Next() {
		var r storage.FailureRecord
		if err := rows.Scan(&r.Endpoint.Host, &r.Endpoint.Port, &r.ConsecutiveFailures, &r.FirstFailedAt, &r.LastFailedAt); err != nil {
			return nil, fmt.Errorf("scanning failure record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failure records: %w", err)
	}
	return out, nil
}
