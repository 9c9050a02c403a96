// Package db provides PostgreSQL access for listing and experience records.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateURL is returned when a listing with the same canonical URL is already stored
var ErrDuplicateURL = errors.New("listing with this URL already exists")

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the tables used by job-tracker if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id           UUID PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL,
	company      TEXT NOT NULL,
	domain       TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	posted_date  TEXT NOT NULL DEFAULT '',
	skills       TEXT[] NOT NULL DEFAULT '{}',
	requirements TEXT[] NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS experiences (
	id           UUID PRIMARY KEY,
	title        TEXT NOT NULL,
	organization TEXT NOT NULL,
	type         TEXT NOT NULL,
	location     TEXT NOT NULL DEFAULT '',
	start_date   TEXT NOT NULL,
	end_date     TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS experience_bullets (
	experience_id UUID NOT NULL REFERENCES experiences(id) ON DELETE CASCADE,
	position      INT NOT NULL,
	text          TEXT NOT NULL,
	PRIMARY KEY (experience_id, position)
);
`
