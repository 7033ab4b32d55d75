package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"canonkeeper/internal/store"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{pool: pool}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	name        TEXT NOT NULL,
	attributes  JSONB NOT NULL DEFAULT '{}',
	tags        TEXT[] NOT NULL DEFAULT '{}',
	version     BIGINT NOT NULL,
	tombstoned  BOOLEAN NOT NULL DEFAULT FALSE,
	step        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	source_id TEXT NOT NULL REFERENCES entities(id),
	target_id TEXT NOT NULL REFERENCES entities(id),
	rel_type  TEXT NOT NULL,
	directed  BOOLEAN NOT NULL DEFAULT FALSE,
	CONSTRAINT uq_relationship UNIQUE (source_id, target_id, rel_type)
);

CREATE TABLE IF NOT EXISTS decisions (
	seq      BIGSERIAL PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	recorded TIMESTAMPTZ NOT NULL,
	payload  JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (entity_type);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships (source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships (target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships (rel_type);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
