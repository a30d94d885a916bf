package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate bootstraps the schema on startup. Statements are idempotent so
// repeated startups converge.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	first_name TEXT,
	last_name TEXT,
	image_url TEXT,
	subscription_status TEXT NOT NULL DEFAULT 'free',
	billing_cycle TEXT,
	subscription_starts_at TIMESTAMPTZ,
	subscription_ends_at TIMESTAMPTZ,
	last_reset_date DATE,
	stripe_customer_id TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_usage (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	workflow_generations_used INT NOT NULL DEFAULT 0,
	workflow_generations_limit INT NOT NULL DEFAULT 3,
	premium_generations_used INT NOT NULL DEFAULT 0,
	premium_generations_limit INT NOT NULL DEFAULT 0,
	bonus_generations_used INT NOT NULL DEFAULT 0,
	bonus_generations_limit INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS generation_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	input_text TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	generation_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS generation_logs_user_id_idx ON generation_logs (user_id, created_at);

CREATE TABLE IF NOT EXISTS request_windows (
	user_id TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	count INT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, window_start)
);
`
