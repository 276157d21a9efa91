package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS phantomlink_kv (
	profile    TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (profile, key)
);`

// DefaultProfile namespaces the state when no profile is configured.
const DefaultProfile = "default"

// Postgres is a [KV] in a shared PostgreSQL database. Each profile has its own
// key space, so several clients can keep their state in one table.
type Postgres struct {
	pool    *pgxpool.Pool
	profile string
}

var _ KV = (*Postgres)(nil)

// OpenPostgres connects to dsn, creates the table if needed and returns a KV
// scoped to profile. An empty profile selects [DefaultProfile].
func OpenPostgres(ctx context.Context, dsn, profile string) (*Postgres, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("localstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("localstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}
	return &Postgres{pool: pool, profile: profile}, nil
}

// Profile returns the key space this store reads and writes.
func (p *Postgres) Profile() string { return p.profile }

// Get implements [KV].
func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM phantomlink_kv WHERE profile = $1 AND key = $2`,
		p.profile, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements [KV].
func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO phantomlink_kv (profile, key, value, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		p.profile, key, value)
	return err
}

// Delete implements [KV].
func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM phantomlink_kv WHERE profile = $1 AND key = $2`,
		p.profile, key)
	return err
}

// Ping checks the connection. Used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements [KV]. pgxpool.Pool.Close is idempotent.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
