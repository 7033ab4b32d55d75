package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"canonkeeper/internal/store"
)

func (c *Client) AppendDecision(ctx context.Context, d store.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}

	_, err = c.pool.Exec(ctx,
		"INSERT INTO decisions (id, recorded, payload) VALUES ($1, $2, $3)",
		d.ID, d.Timestamp.UTC(), payload)
	if err != nil {
		return fmt.Errorf("appending decision: %w", err)
	}
	return nil
}

func (c *Client) ListDecisions(ctx context.Context) ([]store.Decision, error) {
	rows, err := c.pool.Query(ctx, "SELECT payload FROM decisions ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []store.Decision
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		var d store.Decision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("unmarshaling decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return decisions, nil
}
