package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"canonkeeper/internal/store"
)

func (c *Client) PutRelationship(ctx context.Context, rel store.Relationship) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
		var tombstoned bool
		err := tx.QueryRow(ctx,
			"SELECT tombstoned FROM entities WHERE id = $1", endpoint,
		).Scan(&tombstoned)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && tombstoned) {
			return fmt.Errorf("relationship endpoint %s: %w", endpoint, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking endpoint %s: %w", endpoint, err)
		}
	}

	_, err = tx.Exec(ctx, `
INSERT INTO relationships (source_id, target_id, rel_type, directed)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source_id, target_id, rel_type) DO NOTHING`,
		rel.SourceID, rel.TargetID, rel.Type, rel.Directed)
	if err != nil {
		return fmt.Errorf("upserting relationship: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) RelationshipsFor(ctx context.Context, entityID string) ([]store.Relationship, error) {
	rows, err := c.pool.Query(ctx, `
SELECT source_id, target_id, rel_type, directed FROM relationships
WHERE source_id = $1 OR target_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

func (c *Client) ListRelationships(ctx context.Context) ([]store.Relationship, error) {
	rows, err := c.pool.Query(ctx,
		"SELECT source_id, target_id, rel_type, directed FROM relationships")
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

func scanRelationships(rows pgx.Rows) ([]store.Relationship, error) {
	var rels []store.Relationship
	for rows.Next() {
		var rel store.Relationship
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Type, &rel.Directed); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}
	return rels, nil
}
