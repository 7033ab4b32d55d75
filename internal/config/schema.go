package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorldSchema is the closed set of entity and relationship types a world
// permits, plus the declarative consistency constraints checked against
// canon on every write.
type WorldSchema struct {
	Version           int                `yaml:"version"`
	EntityTypes       []EntityType       `yaml:"entity_types"`
	RelationshipTypes []RelationshipType `yaml:"relationship_types"`

	entityIndex map[string]*EntityType
	relIndex    map[string]*RelationshipType
}

type EntityType struct {
	Name          string         `yaml:"name"`
	Attributes    []Attribute    `yaml:"attributes"`
	Constraints   []Constraint   `yaml:"constraints"`
	FieldMappings []FieldMapping `yaml:"field_mappings"`
}

type Attribute struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Values   []string `yaml:"values"`
	Required bool     `yaml:"required"`
}

type RelationshipType struct {
	Name        string       `yaml:"name"`
	SourceTypes []string     `yaml:"source_types"`
	TargetTypes []string     `yaml:"target_types"`
	Directed    bool         `yaml:"directed"`
	Constraints []Constraint `yaml:"constraints"`
}

// Constraint is a declarative cross-reference rule. Supported kinds:
//
//   - unique: no two active entities of the type share the attribute value
//   - temporal: a dated source must not precede the dated target it links to
//   - exclusive_target: at most one active source holds this relationship
//     per target at a time
//
// Severity is a static per-rule property: "error" blocks the write,
// "warning" surfaces it for confirmation.
type Constraint struct {
	Kind      string `yaml:"kind"`
	Attribute string `yaml:"attribute"`
	Severity  string `yaml:"severity"`
}

// FieldMapping turns a frontmatter field into a relationship during bulk
// import, e.g. a character's `home: Hilltop` into LOCATED_IN.
type FieldMapping struct {
	Field        string `yaml:"field"`
	Relationship string `yaml:"relationship"`
}

const (
	KindString    = "string"
	KindNumber    = "number"
	KindEnum      = "enum"
	KindReference = "reference"
	KindDate      = "date"
)

const (
	ConstraintUnique          = "unique"
	ConstraintTemporal        = "temporal"
	ConstraintExclusiveTarget = "exclusive_target"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

func LoadWorldSchema(path string) (*WorldSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading world schema: %w", err)
	}

	schema, err := ParseWorldSchema(data)
	if err != nil {
		return nil, fmt.Errorf("loading world schema: %w", err)
	}
	return schema, nil
}

func ParseWorldSchema(data []byte) (*WorldSchema, error) {
	var schema WorldSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, err
	}

	if err := validateWorldSchema(&schema); err != nil {
		return nil, err
	}

	schema.entityIndex = make(map[string]*EntityType)
	for i := range schema.EntityTypes {
		entity := &schema.EntityTypes[i]
		schema.entityIndex[strings.ToLower(entity.Name)] = entity
	}

	schema.relIndex = make(map[string]*RelationshipType)
	for i := range schema.RelationshipTypes {
		rel := &schema.RelationshipTypes[i]
		schema.relIndex[strings.ToLower(rel.Name)] = rel
	}

	return &schema, nil
}

func validateWorldSchema(s *WorldSchema) error {
	if s.Version != 1 {
		return fmt.Errorf("unsupported version: %d", s.Version)
	}
	if len(s.EntityTypes) == 0 {
		return fmt.Errorf("at least one entity type is required")
	}

	entityNames := make(map[string]struct{})
	for i, entity := range s.EntityTypes {
		if strings.TrimSpace(entity.Name) == "" {
			return fmt.Errorf("entity type %d name is required", i)
		}
		key := strings.ToLower(entity.Name)
		if _, exists := entityNames[key]; exists {
			return fmt.Errorf("duplicate entity type name: %s", entity.Name)
		}
		entityNames[key] = struct{}{}

		attrNames := make(map[string]struct{})
		for _, attr := range entity.Attributes {
			name := strings.ToLower(strings.TrimSpace(attr.Name))
			if name == "" {
				return fmt.Errorf("entity type %s has attribute with empty name", entity.Name)
			}
			if _, exists := attrNames[name]; exists {
				return fmt.Errorf("entity type %s has duplicate attribute: %s", entity.Name, attr.Name)
			}
			attrNames[name] = struct{}{}

			switch strings.ToLower(attr.Kind) {
			case KindString, KindNumber, KindEnum, KindReference, KindDate:
			case "":
				return fmt.Errorf("entity type %s attribute %s kind is required", entity.Name, attr.Name)
			default:
				return fmt.Errorf("entity type %s attribute %s has unknown kind: %s", entity.Name, attr.Name, attr.Kind)
			}
			if strings.EqualFold(attr.Kind, KindEnum) && len(attr.Values) == 0 {
				return fmt.Errorf("entity type %s attribute %s enum has no values", entity.Name, attr.Name)
			}
		}

		for _, constraint := range entity.Constraints {
			if constraint.Kind != ConstraintUnique {
				return fmt.Errorf("entity type %s has unsupported constraint kind: %s", entity.Name, constraint.Kind)
			}
			if _, ok := attrNames[strings.ToLower(constraint.Attribute)]; !ok {
				return fmt.Errorf("entity type %s unique constraint references unknown attribute: %s", entity.Name, constraint.Attribute)
			}
			if err := validateSeverity(constraint.Severity); err != nil {
				return fmt.Errorf("entity type %s: %w", entity.Name, err)
			}
		}
	}

	relNames := make(map[string]struct{})
	for i, rel := range s.RelationshipTypes {
		if strings.TrimSpace(rel.Name) == "" {
			return fmt.Errorf("relationship type %d name is required", i)
		}
		key := strings.ToLower(rel.Name)
		if _, exists := relNames[key]; exists {
			return fmt.Errorf("duplicate relationship type name: %s", rel.Name)
		}
		relNames[key] = struct{}{}

		for _, endpointType := range append(append([]string{}, rel.SourceTypes...), rel.TargetTypes...) {
			if _, ok := entityNames[strings.ToLower(endpointType)]; !ok {
				return fmt.Errorf("relationship type %s references unknown entity type: %s", rel.Name, endpointType)
			}
		}

		for _, constraint := range rel.Constraints {
			switch constraint.Kind {
			case ConstraintTemporal:
				if strings.TrimSpace(constraint.Attribute) == "" {
					return fmt.Errorf("relationship type %s temporal constraint requires an attribute", rel.Name)
				}
			case ConstraintExclusiveTarget:
			default:
				return fmt.Errorf("relationship type %s has unsupported constraint kind: %s", rel.Name, constraint.Kind)
			}
			if err := validateSeverity(constraint.Severity); err != nil {
				return fmt.Errorf("relationship type %s: %w", rel.Name, err)
			}
		}
	}

	for _, entity := range s.EntityTypes {
		for _, mapping := range entity.FieldMappings {
			if strings.TrimSpace(mapping.Field) == "" {
				return fmt.Errorf("entity type %s has field mapping with empty field", entity.Name)
			}
			if _, ok := relNames[strings.ToLower(mapping.Relationship)]; !ok {
				return fmt.Errorf("entity type %s field mapping references unknown relationship: %s", entity.Name, mapping.Relationship)
			}
		}
	}

	return nil
}

func validateSeverity(severity string) error {
	switch severity {
	case "", SeverityError, SeverityWarning:
		return nil
	default:
		return fmt.Errorf("unknown constraint severity: %s", severity)
	}
}

func (s *WorldSchema) EntityTypeByName(name string) (*EntityType, bool) {
	if s == nil {
		return nil, false
	}
	entity, ok := s.entityIndex[strings.ToLower(name)]
	return entity, ok
}

func (s *WorldSchema) RelationshipTypeByName(name string) (*RelationshipType, bool) {
	if s == nil {
		return nil, false
	}
	rel, ok := s.relIndex[strings.ToLower(name)]
	return rel, ok
}

func (s *WorldSchema) IsValidEntityType(name string) bool {
	_, ok := s.EntityTypeByName(name)
	return ok
}

func (s *WorldSchema) IsValidRelationshipType(name string) bool {
	_, ok := s.RelationshipTypeByName(name)
	return ok
}

func (t *EntityType) AttributeByName(name string) (*Attribute, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Attributes {
		if strings.EqualFold(t.Attributes[i].Name, name) {
			return &t.Attributes[i], true
		}
	}
	return nil, false
}

// AllowsEndpoints reports whether the relationship type permits the given
// source and target entity types. An empty list permits any type.
func (t *RelationshipType) AllowsEndpoints(sourceType, targetType string) bool {
	if t == nil {
		return false
	}
	return typeAllowed(t.SourceTypes, sourceType) && typeAllowed(t.TargetTypes, targetType)
}

func typeAllowed(allowed []string, name string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, name) {
			return true
		}
	}
	return false
}
