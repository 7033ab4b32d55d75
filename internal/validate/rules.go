package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
)

// Rule is one declarative cross-reference check: a predicate evaluated
// against the candidate and current canon, producing zero or more
// findings. New rules are added by appending to the rule set; the
// checker's control flow never changes.
type Rule struct {
	Code  string
	Check func(ctx context.Context, cand Candidate, canon store.Reader) ([]Message, error)
}

// CheckRules is the second validation layer. Every rule runs and every
// violation is collected; the layer fails if any finding is an error,
// warns if only warning-tagged rules fired.
func CheckRules(ctx context.Context, rules []Rule, cand Candidate, canon store.Reader) (Result, error) {
	var messages []Message
	for _, rule := range rules {
		found, err := rule.Check(ctx, cand, canon)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Code, err)
		}
		messages = append(messages, found...)
	}
	return resultFromMessages(LayerRule, messages), nil
}

// RulesFromSchema compiles the world schema's declarative constraints
// into the rule set. Referential integrity is always present; the rest
// come from the schema's constraint blocks.
func RulesFromSchema(schema *config.WorldSchema) []Rule {
	rules := []Rule{
		{Code: CodeEndpointMissing, Check: referentialIntegrity(schema)},
	}
	for _, entityType := range schema.EntityTypes {
		for _, constraint := range entityType.Constraints {
			if constraint.Kind == config.ConstraintUnique {
				rules = append(rules, Rule{
					Code:  CodeDuplicateValue,
					Check: uniqueAttribute(entityType.Name, constraint.Attribute, severityOf(constraint)),
				})
			}
		}
	}
	for _, relType := range schema.RelationshipTypes {
		for _, constraint := range relType.Constraints {
			switch constraint.Kind {
			case config.ConstraintTemporal:
				rules = append(rules, Rule{
					Code:  CodeTemporalOrder,
					Check: temporalOrder(relType.Name, constraint.Attribute, severityOf(constraint)),
				})
			case config.ConstraintExclusiveTarget:
				rules = append(rules, Rule{
					Code:  CodeExclusiveHeld,
					Check: exclusiveTarget(relType.Name, severityOf(constraint)),
				})
			}
		}
	}
	return rules
}

func severityOf(c config.Constraint) Severity {
	if c.Severity == config.SeverityWarning {
		return SeverityWarning
	}
	return SeverityError
}

// referentialIntegrity checks that every relationship endpoint and every
// reference-kind attribute resolves to an existing, non-tombstoned
// entity. The candidate entity itself counts as resolving its own id.
func referentialIntegrity(schema *config.WorldSchema) func(context.Context, Candidate, store.Reader) ([]Message, error) {
	return func(ctx context.Context, cand Candidate, canon store.Reader) ([]Message, error) {
		var messages []Message

		resolve := func(id string) (*store.Entity, error) {
			if cand.Entity != nil && cand.Entity.ID == id {
				return cand.Entity, nil
			}
			e, err := canon.GetEntity(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return e, err
		}

		for _, rel := range cand.Relationships {
			relType, ok := schema.RelationshipTypeByName(rel.Type)
			if !ok {
				continue // schema layer already reported it
			}
			var endpointTypes [2]string
			for i, id := range []string{rel.SourceID, rel.TargetID} {
				e, err := resolve(id)
				if err != nil {
					return nil, err
				}
				switch {
				case e == nil:
					messages = append(messages, Message{
						Code:      CodeEndpointMissing,
						Severity:  SeverityError,
						Text:      fmt.Sprintf("relationship %s references missing entity: %s", rel.Type, id),
						EntityIDs: []string{id},
					})
				case e.Tombstoned:
					messages = append(messages, Message{
						Code:      CodeEndpointTombstoned,
						Severity:  SeverityError,
						Text:      fmt.Sprintf("relationship %s references deleted entity: %s", rel.Type, id),
						EntityIDs: []string{id},
					})
				default:
					endpointTypes[i] = e.Type
				}
			}
			if endpointTypes[0] != "" && endpointTypes[1] != "" && !relType.AllowsEndpoints(endpointTypes[0], endpointTypes[1]) {
				messages = append(messages, Message{
					Code:      CodeEndpointsNotAllowed,
					Severity:  SeverityError,
					Text:      fmt.Sprintf("relationship %s is not permitted between %s and %s", rel.Type, endpointTypes[0], endpointTypes[1]),
					EntityIDs: []string{rel.SourceID, rel.TargetID},
				})
			}
		}

		if cand.Entity != nil {
			entityType, ok := schema.EntityTypeByName(cand.Entity.Type)
			if ok {
				for _, attr := range entityType.Attributes {
					if !strings.EqualFold(attr.Kind, config.KindReference) {
						continue
					}
					ref, ok := cand.Entity.Attributes[attr.Name].(string)
					if !ok || ref == "" {
						continue
					}
					e, err := resolve(ref)
					if err != nil {
						return nil, err
					}
					if e == nil || e.Tombstoned {
						messages = append(messages, Message{
							Code:      CodeEndpointMissing,
							Severity:  SeverityError,
							Text:      fmt.Sprintf("attribute %s references missing entity: %s", attr.Name, ref),
							EntityIDs: []string{cand.Entity.ID, ref},
						})
					}
				}
			}
		}

		return messages, nil
	}
}

func uniqueAttribute(entityType, attribute string, severity Severity) func(context.Context, Candidate, store.Reader) ([]Message, error) {
	return func(ctx context.Context, cand Candidate, canon store.Reader) ([]Message, error) {
		if cand.Entity == nil || !strings.EqualFold(cand.Entity.Type, entityType) {
			return nil, nil
		}
		value, ok := cand.Entity.Attributes[attribute].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return nil, nil
		}

		others, err := canon.ListEntities(ctx, entityType)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			if other.ID == cand.Entity.ID || other.Tombstoned {
				continue
			}
			otherValue, ok := other.Attributes[attribute].(string)
			if ok && strings.EqualFold(strings.TrimSpace(otherValue), strings.TrimSpace(value)) {
				return []Message{{
					Code:      CodeDuplicateValue,
					Severity:  severity,
					Text:      fmt.Sprintf("another %s already has %s %q", entityType, attribute, value),
					EntityIDs: []string{cand.Entity.ID, other.ID},
				}}, nil
			}
		}
		return nil, nil
	}
}

// temporalOrder enforces that a dated entity never precedes the dated
// entity it is declared a consequence of, both for relationships carried
// by the candidate and, when the candidate's own date moves, for
// relationships already in canon.
func temporalOrder(relType, dateAttr string, severity Severity) func(context.Context, Candidate, store.Reader) ([]Message, error) {
	return func(ctx context.Context, cand Candidate, canon store.Reader) ([]Message, error) {
		checkPair := func(sourceID, targetID string) ([]Message, error) {
			source, err := entityForRule(ctx, cand, canon, sourceID)
			if err != nil || source == nil {
				return nil, err
			}
			target, err := entityForRule(ctx, cand, canon, targetID)
			if err != nil || target == nil {
				return nil, err
			}
			sourceDate, ok := dateOf(source, dateAttr)
			if !ok {
				return nil, nil
			}
			targetDate, ok := dateOf(target, dateAttr)
			if !ok {
				return nil, nil
			}
			if sourceDate.Before(targetDate) {
				return []Message{{
					Code:      CodeTemporalOrder,
					Severity:  severity,
					Text:      fmt.Sprintf("%s (%s) cannot precede %s (%s) it follows from", source.Name, source.Attributes[dateAttr], target.Name, target.Attributes[dateAttr]),
					EntityIDs: []string{source.ID, target.ID},
				}}, nil
			}
			return nil, nil
		}

		var messages []Message
		for _, rel := range cand.Relationships {
			if !strings.EqualFold(rel.Type, relType) {
				continue
			}
			found, err := checkPair(rel.SourceID, rel.TargetID)
			if err != nil {
				return nil, err
			}
			messages = append(messages, found...)
		}

		if cand.Entity != nil {
			existing, err := canon.RelationshipsFor(ctx, cand.Entity.ID)
			if err != nil {
				return nil, err
			}
			for _, rel := range existing {
				if !strings.EqualFold(rel.Type, relType) {
					continue
				}
				found, err := checkPair(rel.SourceID, rel.TargetID)
				if err != nil {
					return nil, err
				}
				messages = append(messages, found...)
			}
		}

		return messages, nil
	}
}

// exclusiveTarget enforces "at most one active holder per target": no
// second source may take the relationship while another non-tombstoned
// source still holds it.
func exclusiveTarget(relType string, severity Severity) func(context.Context, Candidate, store.Reader) ([]Message, error) {
	return func(ctx context.Context, cand Candidate, canon store.Reader) ([]Message, error) {
		var messages []Message
		for _, rel := range cand.Relationships {
			if !strings.EqualFold(rel.Type, relType) {
				continue
			}
			existing, err := canon.RelationshipsFor(ctx, rel.TargetID)
			if err != nil {
				return nil, err
			}
			for _, other := range existing {
				if !strings.EqualFold(other.Type, relType) || other.TargetID != rel.TargetID {
					continue
				}
				if other.SourceID == rel.SourceID {
					continue
				}
				holder, err := canon.GetEntity(ctx, other.SourceID)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				if holder.Tombstoned {
					continue
				}
				messages = append(messages, Message{
					Code:      CodeExclusiveHeld,
					Severity:  severity,
					Text:      fmt.Sprintf("%s is already held for %s by %s", rel.Type, rel.TargetID, holder.Name),
					EntityIDs: []string{rel.SourceID, rel.TargetID, holder.ID},
				})
			}
		}
		return messages, nil
	}
}

func entityForRule(ctx context.Context, cand Candidate, canon store.Reader, id string) (*store.Entity, error) {
	if cand.Entity != nil && cand.Entity.ID == id {
		return cand.Entity, nil
	}
	e, err := canon.GetEntity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

func dateOf(e *store.Entity, attr string) (time.Time, bool) {
	s, isString := e.Attributes[attr].(string)
	if !isString {
		return time.Time{}, false
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
