package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"canonkeeper/internal/store"
)

const entityColumns = "id, entity_type, name, attributes, tags, version, tombstoned, step, created_at, updated_at"

func (c *Client) GetEntity(ctx context.Context, id string) (*store.Entity, error) {
	row := c.pool.QueryRow(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE id = $1", id)

	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return e, nil
}

func (c *Client) PutEntity(ctx context.Context, e store.Entity, expectedVersion int64) (*store.Entity, error) {
	if strings.TrimSpace(e.ID) == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	attrsJSON, err := json.Marshal(orEmptyMap(e.Attributes))
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	var currentVersion int64
	var step string
	err = tx.QueryRow(ctx,
		"SELECT version, step FROM entities WHERE id = $1 FOR UPDATE", e.ID,
	).Scan(&currentVersion, &step)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expectedVersion != 0 {
			return nil, fmt.Errorf("entity %s does not exist at version %d: %w", e.ID, expectedVersion, store.ErrConflict)
		}
		e.Version = 1
		_, err = tx.Exec(ctx, `
INSERT INTO entities (id, entity_type, name, attributes, tags, version, tombstoned, step, created_at, updated_at)
VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::text[]), $6, $7, $8, $9, $9)`,
			e.ID, e.Type, e.Name, attrsJSON, e.Tags, e.Version, e.Tombstoned, e.Step, now)
		if err != nil {
			return nil, fmt.Errorf("inserting entity: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading current version: %w", err)
	default:
		if currentVersion != expectedVersion {
			return nil, fmt.Errorf("entity %s is at version %d, not %d: %w", e.ID, currentVersion, expectedVersion, store.ErrConflict)
		}
		e.Version = expectedVersion + 1
		if e.Step == "" {
			e.Step = step
		}
		_, err = tx.Exec(ctx, `
UPDATE entities
SET entity_type = $1, name = $2, attributes = $3, tags = COALESCE($4, '{}'::text[]),
    version = $5, tombstoned = $6, step = $7, updated_at = $8
WHERE id = $9`,
			e.Type, e.Name, attrsJSON, e.Tags, e.Version, e.Tombstoned, e.Step, now, e.ID)
		if err != nil {
			return nil, fmt.Errorf("updating entity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return c.GetEntity(ctx, e.ID)
}

func (c *Client) TombstoneEntity(ctx context.Context, id string, expectedVersion int64) (*store.Entity, error) {
	tag, err := c.pool.Exec(ctx, `
UPDATE entities SET tombstoned = TRUE, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("tombstoning entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := c.GetEntity(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("entity %s is at version %d, not %d: %w", id, current.Version, expectedVersion, store.ErrConflict)
	}

	return c.GetEntity(ctx, id)
}

func (c *Client) ListEntities(ctx context.Context, entityType string) ([]store.Entity, error) {
	rows, err := c.pool.Query(ctx, `
SELECT `+entityColumns+` FROM entities
WHERE ($1 = '' OR lower(entity_type) = lower($1))
ORDER BY id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	entities := []store.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*store.Entity, error) {
	var e store.Entity
	var attrsBytes []byte

	err := row.Scan(&e.ID, &e.Type, &e.Name, &attrsBytes, &e.Tags, &e.Version, &e.Tombstoned, &e.Step, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(attrsBytes) > 0 {
		if err := json.Unmarshal(attrsBytes, &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshaling attributes: %w", err)
		}
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	return &e, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
