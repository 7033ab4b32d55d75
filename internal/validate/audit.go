package validate

import (
	"context"
	"errors"
	"fmt"

	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
)

// AuditReport lists everything in canon that no longer satisfies the
// schema or the declarative rules, e.g. after a schema change or a
// restore.
type AuditReport struct {
	Messages []Message
}

func (r *AuditReport) HasErrors() bool {
	for _, msg := range r.Messages {
		if msg.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Audit re-runs the deterministic layers over the whole store. The
// semantic oracle is deliberately not consulted: an audit may touch
// every entity and the oracle is bounded per-request, not per-world.
func Audit(ctx context.Context, schema *config.WorldSchema, canon store.Store) (*AuditReport, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if canon == nil {
		return nil, fmt.Errorf("canon store is required")
	}

	rules := RulesFromSchema(schema)
	report := &AuditReport{}

	entities, err := canon.ListEntities(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	for i := range entities {
		if entities[i].Tombstoned {
			continue
		}
		cand := Candidate{Entity: &entities[i]}
		schemaResult := CheckSchema(schema, cand)
		report.Messages = append(report.Messages, schemaResult.Messages...)

		ruleResult, err := CheckRules(ctx, rules, cand, canon)
		if err != nil {
			return nil, fmt.Errorf("audit entity %s: %w", entities[i].ID, err)
		}
		report.Messages = append(report.Messages, ruleResult.Messages...)
	}

	rels, err := canon.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	for _, rel := range rels {
		for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
			e, err := canon.GetEntity(ctx, endpoint)
			if errors.Is(err, store.ErrNotFound) {
				report.Messages = append(report.Messages, Message{
					Code:      CodeEndpointMissing,
					Severity:  SeverityError,
					Text:      fmt.Sprintf("relationship %s references missing entity: %s", rel.Type, endpoint),
					EntityIDs: []string{endpoint},
				})
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("audit relationship %s: %w", rel.Type, err)
			}
			if e.Tombstoned {
				report.Messages = append(report.Messages, Message{
					Code:      CodeEndpointTombstoned,
					Severity:  SeverityError,
					Text:      fmt.Sprintf("relationship %s references deleted entity: %s", rel.Type, endpoint),
					EntityIDs: []string{endpoint},
				})
			}
		}
	}

	return report, nil
}
