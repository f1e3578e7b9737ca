// Package store persists URL check history in PostgreSQL. The store is
// optional: when no DSN is configured the urls instance runs without
// it, and store failures never abort a run.
package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"oapmon/internal/models"
)

// CheckRecord is one URL check outcome as stored and reported
type CheckRecord struct {
	Client string
	Env    string
	URL    string
	Status string
}

// Postgres wraps a pgx pool over the url_response_status table
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to the database and ensures the schema exists
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the history table when missing
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS url_response_status (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	client TEXT NOT NULL,
	env TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	check_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
)
`
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertChecks appends one row per checked URL
func (s *Postgres) InsertChecks(ctx context.Context, records []CheckRecord) error {
	const q = `
INSERT INTO url_response_status (client, env, url, status)
VALUES ($1, $2, $3, $4)
`
	for _, r := range records {
		if _, err := s.pool.Exec(ctx, q, r.Client, r.Env, r.URL, r.Status); err != nil {
			return fmt.Errorf("insert check for %s: %w", r.URL, err)
		}
	}
	return nil
}

// LatestFailures returns the most recent status per URL, filtered to
// those not currently reporting 200
func (s *Postgres) LatestFailures(ctx context.Context) ([]CheckRecord, error) {
	const q = `
WITH latest_status AS (
	SELECT client, env, url, status,
	       ROW_NUMBER() OVER (PARTITION BY url ORDER BY check_timestamp DESC) AS rn
	FROM url_response_status
)
SELECT client, env, url, status FROM latest_status WHERE rn = 1 AND status <> '200'
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("latest failures: %w", err)
	}
	defer rows.Close()

	var out []CheckRecord
	for rows.Next() {
		var r CheckRecord
		if err := rows.Scan(&r.Client, &r.Env, &r.URL, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the pool
func (s *Postgres) Close() {
	s.pool.Close()
}

// RecordFor converts a URL check sample into its stored form. Failed
// checks store their failure class ("Timeout", "Connection Error") in
// place of a status code.
func RecordFor(sample models.Sample) CheckRecord {
	status := sample.Display
	if status == "" {
		status = strconv.Itoa(int(sample.Value))
	}
	labels := sample.Labels
	client, env := "N/A", "N/A"
	if labels != nil {
		if v := labels["client"]; v != "" {
			client = v
		}
		if v := labels["env"]; v != "" {
			env = v
		}
	}
	return CheckRecord{
		Client: client,
		Env:    env,
		URL:    sample.Source,
		Status: status,
	}
}
