package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an entity, decision, or snapshot id
	// does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by PutEntity and TombstoneEntity when the
	// stored version does not match the caller's expected version.
	ErrConflict = errors.New("version conflict")
)

type Entity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	Tags       []string       `json:"tags,omitempty"`
	Version    int64          `json:"version"`
	Tombstoned bool           `json:"tombstoned,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`

	// Step is the world-building stage that created the entity.
	Step string `json:"step,omitempty"`
}

type Relationship struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
	Directed bool   `json:"directed"`
}

type Option struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AssumedFacts []string `json:"assumed_facts,omitempty"`
}

// Decision is an immutable record of a user choice among presented
// options. Corrections append a superseding decision; history is never
// edited.
type Decision struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Step        string    `json:"step"`
	Options     []Option  `json:"options_considered"`
	ChosenID    string    `json:"chosen_option_id"`
	RejectedIDs []string  `json:"rejected_option_ids"`
	Rationale   string    `json:"rationale,omitempty"`

	// EntityID and EntityVersion link the decision to the canon commit it
	// produced, when there was one.
	EntityID      string `json:"entity_id,omitempty"`
	EntityVersion int64  `json:"entity_version,omitempty"`
}

// Snapshot is a complete, independent copy of one world's canon state.
// Its contents are never mutated after creation.
type Snapshot struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Reason        string         `json:"reason"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Store is the sole authoritative, versioned store of one world's
// entities, relationships, decisions, and snapshots.
//
// PutEntity is an atomic compare-and-swap keyed on the entity version:
// expectedVersion 0 creates, any other value must match the stored
// version or ErrConflict is returned. Reads observe a single consistent
// point-in-time view and never see a half-committed write.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	GetEntity(ctx context.Context, id string) (*Entity, error)
	PutEntity(ctx context.Context, e Entity, expectedVersion int64) (*Entity, error)
	TombstoneEntity(ctx context.Context, id string, expectedVersion int64) (*Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]Entity, error)

	PutRelationship(ctx context.Context, rel Relationship) error
	RelationshipsFor(ctx context.Context, entityID string) ([]Relationship, error)
	ListRelationships(ctx context.Context) ([]Relationship, error)

	AppendDecision(ctx context.Context, d Decision) error
	ListDecisions(ctx context.Context) ([]Decision, error)

	Snapshot(ctx context.Context, reason string) (*Snapshot, error)
	Restore(ctx context.Context, snap *Snapshot) error
}

// Reader is the read-only slice of Store the validation layers use.
type Reader interface {
	GetEntity(ctx context.Context, id string) (*Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]Entity, error)
	RelationshipsFor(ctx context.Context, entityID string) ([]Relationship, error)
}

func CopyEntity(e Entity) Entity {
	copied := e
	if e.Attributes != nil {
		copied.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			copied.Attributes[k] = v
		}
	}
	if e.Tags != nil {
		copied.Tags = append([]string(nil), e.Tags...)
	}
	return copied
}
