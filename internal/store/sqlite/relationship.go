package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"canonkeeper/internal/store"
)

func (c *Client) PutRelationship(ctx context.Context, rel store.Relationship) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
		var tombstoned int
		err := tx.QueryRowContext(ctx,
			"SELECT tombstoned FROM entities WHERE id = ?", endpoint,
		).Scan(&tombstoned)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && tombstoned != 0) {
			return fmt.Errorf("relationship endpoint %s: %w", endpoint, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking endpoint %s: %w", endpoint, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT OR IGNORE INTO relationships (source_id, target_id, rel_type, directed)
	VALUES (?, ?, ?, ?)`,
		rel.SourceID, rel.TargetID, rel.Type, boolToInt(rel.Directed))
	if err != nil {
		return fmt.Errorf("upserting relationship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) RelationshipsFor(ctx context.Context, entityID string) ([]store.Relationship, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT source_id, target_id, rel_type, directed FROM relationships
	WHERE source_id = ? OR target_id = ?`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

func (c *Client) ListRelationships(ctx context.Context) ([]store.Relationship, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT source_id, target_id, rel_type, directed FROM relationships")
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]store.Relationship, error) {
	var rels []store.Relationship
	for rows.Next() {
		var rel store.Relationship
		var directed int
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Type, &directed); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rel.Directed = directed != 0
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}
	return rels, nil
}
