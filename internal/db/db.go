package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Pool exposes the connection pool for stores that keep their own queries.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS players (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_players_name ON players(name);

	CREATE TABLE IF NOT EXISTS tournaments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		start_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		end_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chat_tournaments (
		context_id TEXT PRIMARY KEY,
		tournament_id UUID NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS entry_allowlist (
		actor_id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS tournament_admins (
		tournament_id UUID NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
		actor_id TEXT NOT NULL,
		PRIMARY KEY (tournament_id, actor_id)
	);

	CREATE TABLE IF NOT EXISTS matches (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tournament_id UUID NOT NULL REFERENCES tournaments(id),
		played_at TIMESTAMPTZ NOT NULL,
		request_id UUID NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_matches_tournament ON matches(tournament_id, played_at DESC);

	CREATE TABLE IF NOT EXISTS match_participants (
		match_id UUID NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		player_id UUID NOT NULL REFERENCES players(id),
		position INT NOT NULL CHECK (position > 0),
		knockouts INT NOT NULL DEFAULT 0 CHECK (knockouts >= 0),
		PRIMARY KEY (match_id, player_id),
		UNIQUE (match_id, position)
	);

	CREATE TABLE IF NOT EXISTS wizard_sessions (
		session_id BIGSERIAL PRIMARY KEY,
		context_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		state TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_wizard_sessions_pair ON wizard_sessions(context_id, actor_id, updated_at DESC);
`
