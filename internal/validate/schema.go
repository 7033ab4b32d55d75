package validate

import (
	"fmt"
	"strings"
	"time"

	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
)

// CheckSchema is the first validation layer. It is pure: it consults
// nothing beyond the world schema, so malformed candidates are rejected
// before any canon cross-referencing is attempted.
func CheckSchema(schema *config.WorldSchema, cand Candidate) Result {
	var messages []Message

	if cand.Entity != nil {
		messages = append(messages, checkEntitySchema(schema, cand.Entity)...)
	}
	for _, rel := range cand.Relationships {
		if _, ok := schema.RelationshipTypeByName(rel.Type); !ok {
			messages = append(messages, Message{
				Code:      CodeUnknownRelType,
				Severity:  SeverityError,
				Text:      fmt.Sprintf("unknown relationship type: %s", rel.Type),
				EntityIDs: []string{rel.SourceID, rel.TargetID},
			})
		}
	}

	return resultFromMessages(LayerSchema, messages)
}

func checkEntitySchema(schema *config.WorldSchema, entity *store.Entity) []Message {
	entityType, ok := schema.EntityTypeByName(entity.Type)
	if !ok {
		return []Message{{
			Code:      CodeUnknownEntityType,
			Severity:  SeverityError,
			Text:      fmt.Sprintf("unknown entity type: %s", entity.Type),
			EntityIDs: []string{entity.ID},
		}}
	}

	var messages []Message
	for _, attr := range entityType.Attributes {
		value, present := entity.Attributes[attr.Name]
		if !present || value == nil || isBlank(value) {
			if attr.Required {
				messages = append(messages, Message{
					Code:      CodeMissingRequired,
					Severity:  SeverityError,
					Text:      fmt.Sprintf("missing required attribute: %s", attr.Name),
					EntityIDs: []string{entity.ID},
				})
			}
			continue
		}
		messages = append(messages, checkAttributeKind(entity, attr, value)...)
	}

	for name := range entity.Attributes {
		if _, ok := entityType.AttributeByName(name); !ok {
			messages = append(messages, Message{
				Code:      CodeUnknownAttribute,
				Severity:  SeverityWarning,
				Text:      fmt.Sprintf("attribute not declared for type %s: %s", entity.Type, name),
				EntityIDs: []string{entity.ID},
			})
		}
	}

	return messages
}

func checkAttributeKind(entity *store.Entity, attr config.Attribute, value any) []Message {
	mismatch := func() []Message {
		return []Message{{
			Code:      CodeKindMismatch,
			Severity:  SeverityError,
			Text:      fmt.Sprintf("attribute %s must be a %s", attr.Name, attr.Kind),
			EntityIDs: []string{entity.ID},
		}}
	}

	switch strings.ToLower(attr.Kind) {
	case config.KindString, config.KindReference:
		if _, ok := value.(string); !ok {
			return mismatch()
		}
	case config.KindNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			return mismatch()
		}
	case config.KindDate:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		if _, err := ParseDate(s); err != nil {
			return mismatch()
		}
	case config.KindEnum:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		for _, allowed := range attr.Values {
			if allowed == s {
				return nil
			}
		}
		return []Message{{
			Code:      CodeEnumInvalid,
			Severity:  SeverityError,
			Text:      fmt.Sprintf("invalid value for %s: %s", attr.Name, s),
			EntityIDs: []string{entity.ID},
		}}
	}
	return nil
}

// ParseDate accepts the in-world date forms the importer and rules agree
// on: a full date, a year-month, or a bare year.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %s", s)
}

func isBlank(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
