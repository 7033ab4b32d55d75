package validate

import (
	"context"
	"fmt"
	"time"

	"canonkeeper/internal/store"
)

// Oracle is the external plausibility judge consulted after the
// deterministic layers. It is invoked at most once per validation
// request, with a caller-imposed timeout, and is never retried.
type Oracle interface {
	Check(ctx context.Context, diff Diff, excerpt Excerpt) (Verdict, error)
}

type Verdict struct {
	Status      Status `json:"status"`
	Explanation string `json:"explanation"`
}

// Diff describes the candidate change for the oracle: what entity is
// being written and which attribute values moved.
type Diff struct {
	EntityID   string            `json:"entity_id,omitempty"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityName string            `json:"entity_name,omitempty"`
	Creating   bool              `json:"creating,omitempty"`
	Changes    []AttributeChange `json:"changes,omitempty"`
	Relations  []string          `json:"relations,omitempty"`
}

type AttributeChange struct {
	Attribute string `json:"attribute"`
	Old       string `json:"old,omitempty"`
	New       string `json:"new"`
}

// Excerpt is the bounded, relevance-filtered slice of canon the oracle
// judges against; never the whole store.
type Excerpt struct {
	WorldFacts []string `json:"world_facts"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// checkSemantic runs the best-effort third layer. Oracle failure or
// timeout degrades to a warning so a broken or slow oracle never blocks
// a user's work.
func checkSemantic(ctx context.Context, oracle Oracle, timeout time.Duration, diff Diff, excerpt Excerpt) Result {
	if oracle == nil {
		return Result{Layer: LayerSemantic, Status: StatusPass, Messages: []Message{{
			Code:     CodeOracleSkipped,
			Severity: SeverityWarning,
			Text:     "semantic checking is disabled",
		}}}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	verdict, err := oracle.Check(ctx, diff, excerpt)
	if err != nil {
		return Result{Layer: LayerSemantic, Status: StatusWarn, Messages: []Message{{
			Code:     CodeOracleUnavailable,
			Severity: SeverityWarning,
			Text:     "automated semantic checking was skipped: the consistency oracle did not respond in time",
		}}}
	}

	switch verdict.Status {
	case StatusPass:
		return Result{Layer: LayerSemantic, Status: StatusPass}
	case StatusWarn, StatusFail:
		severity := SeverityWarning
		if verdict.Status == StatusFail {
			severity = SeverityError
		}
		return Result{Layer: LayerSemantic, Status: verdict.Status, Messages: []Message{{
			Code:     CodeSemanticConcern,
			Severity: severity,
			Text:     verdict.Explanation,
		}}}
	default:
		return Result{Layer: LayerSemantic, Status: StatusWarn, Messages: []Message{{
			Code:     CodeOracleUnavailable,
			Severity: SeverityWarning,
			Text:     fmt.Sprintf("semantic oracle returned an unrecognized status: %s", verdict.Status),
		}}}
	}
}

func diffFor(cand Candidate, current *store.Entity) Diff {
	diff := Diff{}
	if cand.Entity != nil {
		diff.EntityID = cand.Entity.ID
		diff.EntityType = cand.Entity.Type
		diff.EntityName = cand.Entity.Name
		diff.Creating = current == nil

		for name, value := range cand.Entity.Attributes {
			change := AttributeChange{Attribute: name, New: fmt.Sprint(value)}
			if current != nil {
				if old, ok := current.Attributes[name]; ok {
					if fmt.Sprint(old) == change.New {
						continue
					}
					change.Old = fmt.Sprint(old)
				}
			}
			diff.Changes = append(diff.Changes, change)
		}
	}
	for _, rel := range cand.Relationships {
		diff.Relations = append(diff.Relations, fmt.Sprintf("%s -%s-> %s", rel.SourceID, rel.Type, rel.TargetID))
	}
	return diff
}
