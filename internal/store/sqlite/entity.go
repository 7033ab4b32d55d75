package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"canonkeeper/internal/store"
)

func (c *Client) GetEntity(ctx context.Context, id string) (*store.Entity, error) {
	row := c.db.QueryRowContext(ctx, `
	SELECT id, entity_type, name, attributes, tags, version, tombstoned, step, created_at, updated_at
	FROM entities WHERE id = ?`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	tagsJSON, err := json.Marshal(orEmptySlice(e.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var currentVersion int64
	var createdAt, step string
	err = tx.QueryRowContext(ctx,
		"SELECT version, created_at, step FROM entities WHERE id = ?", e.ID,
	).Scan(&currentVersion, &createdAt, &step)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expectedVersion != 0 {
			return nil, fmt.Errorf("entity %s does not exist at version %d: %w", e.ID, expectedVersion, store.ErrConflict)
		}
		e.Version = 1
		_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, name, attributes, tags, version, tombstoned, step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Type, e.Name, attrsJSON, tagsJSON, e.Version, boolToInt(e.Tombstoned), e.Step, now, now)
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
		result, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET entity_type = ?, name = ?, attributes = ?, tags = ?, version = ?, tombstoned = ?, step = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
			e.Type, e.Name, attrsJSON, tagsJSON, e.Version, boolToInt(e.Tombstoned), e.Step, now, e.ID, expectedVersion)
		if err != nil {
			return nil, fmt.Errorf("updating entity: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("getting rows affected: %w", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("entity %s moved past version %d: %w", e.ID, expectedVersion, store.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return c.GetEntity(ctx, e.ID)
}

func (c *Client) TombstoneEntity(ctx context.Context, id string, expectedVersion int64) (*store.Entity, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	result, err := c.db.ExecContext(ctx, `
	UPDATE entities SET tombstoned = 1, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`, now, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("tombstoning entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := c.GetEntity(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("entity %s is at version %d, not %d: %w", id, current.Version, expectedVersion, store.ErrConflict)
	}

	return c.GetEntity(ctx, id)
}

func (c *Client) ListEntities(ctx context.Context, entityType string) ([]store.Entity, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT id, entity_type, name, attributes, tags, version, tombstoned, step, created_at, updated_at
	FROM entities
	WHERE (? = '' OR entity_type = ? COLLATE NOCASE)
	ORDER BY id`, entityType, entityType)
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
	var attrsBytes, tagsBytes []byte
	var tombstoned int
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.Type, &e.Name, &attrsBytes, &tagsBytes, &e.Version, &tombstoned, &e.Step, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if len(attrsBytes) > 0 {
		if err := json.Unmarshal(attrsBytes, &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshaling attributes: %w", err)
		}
	}
	if len(tagsBytes) > 0 {
		if err := json.Unmarshal(tagsBytes, &e.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	e.Tombstoned = tombstoned != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &e, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
