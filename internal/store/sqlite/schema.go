package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS entities (
		id          TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		name        TEXT NOT NULL,
		attributes  TEXT NOT NULL DEFAULT '{}',
		tags        TEXT NOT NULL DEFAULT '[]',
		version     INTEGER NOT NULL,
		tombstoned  INTEGER NOT NULL DEFAULT 0,
		step        TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relationships (
		source_id TEXT NOT NULL REFERENCES entities(id),
		target_id TEXT NOT NULL REFERENCES entities(id),
		rel_type  TEXT NOT NULL,
		directed  INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT uq_relationship UNIQUE (source_id, target_id, rel_type)
	);

	CREATE TABLE IF NOT EXISTS decisions (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		id        TEXT NOT NULL UNIQUE,
		recorded  TEXT NOT NULL,
		payload   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (entity_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships (source_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships (target_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships (rel_type);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
