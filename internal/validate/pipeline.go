package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
)

// Pipeline runs the three validation layers in fixed order — schema,
// rule, semantic — short-circuiting on the first hard failure, and
// commits accepted candidates to the canon store.
type Pipeline struct {
	schema        *config.WorldSchema
	rules         []Rule
	canon         store.Store
	oracle        Oracle
	oracleTimeout time.Duration
}

func NewPipeline(schema *config.WorldSchema, canon store.Store, oracle Oracle, oracleTimeout time.Duration) *Pipeline {
	return &Pipeline{
		schema:        schema,
		rules:         RulesFromSchema(schema),
		canon:         canon,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
	}
}

// Validate runs the layers against current canon without committing.
// The semantic oracle is consulted exactly once, and only when the
// deterministic layers have not already failed.
func (p *Pipeline) Validate(ctx context.Context, cand Candidate) (*Report, error) {
	report := &Report{Status: StatusPass}

	report.append(CheckSchema(p.schema, cand))
	if report.Failed() {
		return report, nil
	}

	ruleResult, err := CheckRules(ctx, p.rules, cand, p.canon)
	if err != nil {
		return nil, fmt.Errorf("cross-reference check: %w", err)
	}
	report.append(ruleResult)
	if report.Failed() {
		return report, nil
	}

	var current *store.Entity
	if cand.Entity != nil {
		current, err = p.canon.GetEntity(ctx, cand.Entity.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading current entity: %w", err)
		}
	}
	excerpt, err := buildExcerpt(ctx, p.canon, cand)
	if err != nil {
		return nil, fmt.Errorf("building canon excerpt: %w", err)
	}
	report.append(checkSemantic(ctx, p.oracle, p.oracleTimeout, diffFor(cand, current), excerpt))

	return report, nil
}

// Commit validates the candidate and, on pass or user-confirmed warn,
// writes it through the store's compare-and-swap. A stale
// expectedVersion surfaces as store.ErrConflict; the caller re-fetches
// and re-validates, nothing is retried here.
func (p *Pipeline) Commit(ctx context.Context, cand Candidate, expectedVersion int64, confirmWarnings bool) (*store.Entity, *Report, error) {
	report, err := p.Validate(ctx, cand)
	if err != nil {
		return nil, nil, err
	}
	if report.Failed() {
		return nil, report, nil
	}
	if report.Status == StatusWarn && !confirmWarnings {
		return nil, report, nil
	}

	var committed *store.Entity
	if cand.Entity != nil {
		committed, err = p.canon.PutEntity(ctx, *cand.Entity, expectedVersion)
		if err != nil {
			return nil, report, err
		}
	}
	for _, rel := range cand.Relationships {
		if err := p.canon.PutRelationship(ctx, rel); err != nil {
			return committed, report, fmt.Errorf("committing relationship %s: %w", rel.Type, err)
		}
	}

	return committed, report, nil
}

// Tombstone routes a deletion through the same validated-write path.
// Deletion has no schema surface of its own, so only the version check
// applies; the entity is marked, never removed, so history and
// relationship checks remain sound.
func (p *Pipeline) Tombstone(ctx context.Context, id string, expectedVersion int64) (*store.Entity, error) {
	return p.canon.TombstoneEntity(ctx, id, expectedVersion)
}
