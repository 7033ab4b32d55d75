package validate

import (
	"context"
	"testing"

	"canonkeeper/internal/store"
	"canonkeeper/internal/store/memory"
)

func TestAudit_CleanWorld(t *testing.T) {
	canon := memory.New()
	seedEntity(t, canon, store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}})
	seedEntity(t, canon, store.Entity{ID: "hilltop", Type: "place", Name: "Hilltop"})
	if err := canon.PutRelationship(context.Background(), store.Relationship{SourceID: "mira", TargetID: "hilltop", Type: "LOCATED_IN", Directed: true}); err != nil {
		t.Fatalf("put relationship: %v", err)
	}

	report, err := Audit(context.Background(), loadSchema(t, rulesSchema), canon)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.HasErrors() {
		t.Fatalf("expected clean audit, got %+v", report.Messages)
	}
}

func TestAudit_SchemaChangeSurfacesViolations(t *testing.T) {
	canon := memory.New()
	seedEntity(t, canon, store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira", "status": "ghost"}})

	// The same canon audited against a stricter schema.
	strict := loadSchema(t, `version: 1
entity_types:
  - name: character
    attributes:
      - { name: name, kind: string, required: true }
      - { name: status, kind: enum, values: [alive, dead] }
relationship_types:
  - name: KNOWS
`)

	report, err := Audit(context.Background(), strict, canon)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !report.HasErrors() || !hasCode(report.Messages, CodeEnumInvalid) {
		t.Fatalf("expected enum violation from the stricter schema, got %+v", report.Messages)
	}
}

func TestAudit_TombstonedRelationshipEndpoint(t *testing.T) {
	canon := memory.New()
	seedEntity(t, canon, store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}})
	place := seedEntity(t, canon, store.Entity{ID: "hilltop", Type: "place", Name: "Hilltop"})
	if err := canon.PutRelationship(context.Background(), store.Relationship{SourceID: "mira", TargetID: "hilltop", Type: "LOCATED_IN", Directed: true}); err != nil {
		t.Fatalf("put relationship: %v", err)
	}
	if _, err := canon.TombstoneEntity(context.Background(), place.ID, place.Version); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	report, err := Audit(context.Background(), loadSchema(t, rulesSchema), canon)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !hasCode(report.Messages, CodeEndpointTombstoned) {
		t.Fatalf("expected tombstoned endpoint finding, got %+v", report.Messages)
	}
}
