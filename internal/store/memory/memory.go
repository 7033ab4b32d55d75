package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"canonkeeper/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps one world's canon in memory. It is the reference backend:
// a single mutex serializes writes, reads copy out, and snapshots are
// deep copies so later mutations can never reach a stored snapshot.
type Store struct {
	mu            sync.RWMutex
	entities      map[string]store.Entity
	relationships []store.Relationship
	decisions     []store.Decision

	now func() time.Time
}

func New() *Store {
	return &Store{
		entities: make(map[string]store.Entity),
		now:      time.Now,
	}
}

func (s *Store) Close(ctx context.Context) error { return nil }

func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

func (s *Store) GetEntity(ctx context.Context, id string) (*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	copied := store.CopyEntity(e)
	return &copied, nil
}

func (s *Store) PutEntity(ctx context.Context, e store.Entity, expectedVersion int64) (*store.Entity, error) {
	if strings.TrimSpace(e.ID) == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current, exists := s.entities[e.ID]
	if !exists {
		if expectedVersion != 0 {
			return nil, fmt.Errorf("entity %s does not exist at version %d: %w", e.ID, expectedVersion, store.ErrConflict)
		}
		e.Version = 1
		e.CreatedAt = now
	} else {
		if current.Version != expectedVersion {
			return nil, fmt.Errorf("entity %s is at version %d, not %d: %w", e.ID, current.Version, expectedVersion, store.ErrConflict)
		}
		e.Version = expectedVersion + 1
		e.CreatedAt = current.CreatedAt
		if e.Step == "" {
			e.Step = current.Step
		}
	}
	e.UpdatedAt = now

	s.entities[e.ID] = store.CopyEntity(e)
	committed := store.CopyEntity(e)
	return &committed, nil
}

func (s *Store) TombstoneEntity(ctx context.Context, id string, expectedVersion int64) (*store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("entity %s is at version %d, not %d: %w", id, current.Version, expectedVersion, store.ErrConflict)
	}

	current.Tombstoned = true
	current.Version++
	current.UpdatedAt = s.now()
	s.entities[id] = current

	copied := store.CopyEntity(current)
	return &copied, nil
}

func (s *Store) ListEntities(ctx context.Context, entityType string) ([]store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]store.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if entityType != "" && !strings.EqualFold(e.Type, entityType) {
			continue
		}
		entities = append(entities, store.CopyEntity(e))
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}

func (s *Store) PutRelationship(ctx context.Context, rel store.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
		e, ok := s.entities[endpoint]
		if !ok || e.Tombstoned {
			return fmt.Errorf("relationship endpoint %s: %w", endpoint, store.ErrNotFound)
		}
	}

	for _, existing := range s.relationships {
		if existing == rel {
			return nil
		}
	}
	s.relationships = append(s.relationships, rel)
	return nil
}

func (s *Store) RelationshipsFor(ctx context.Context, entityID string) ([]store.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []store.Relationship
	for _, rel := range s.relationships {
		if rel.SourceID == entityID || rel.TargetID == entityID {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

func (s *Store) ListRelationships(ctx context.Context) ([]store.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]store.Relationship(nil), s.relationships...), nil
}

func (s *Store) AppendDecision(ctx context.Context, d store.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.decisions {
		if existing.ID == d.ID {
			return fmt.Errorf("decision %s already recorded", d.ID)
		}
	}
	s.decisions = append(s.decisions, copyDecision(d))
	return nil
}

func (s *Store) ListDecisions(ctx context.Context) ([]store.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := make([]store.Decision, 0, len(s.decisions))
	for _, d := range s.decisions {
		decisions = append(decisions, copyDecision(d))
	}
	return decisions, nil
}

func (s *Store) Snapshot(ctx context.Context, reason string) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &store.Snapshot{
		ID:            uuid.NewString(),
		Timestamp:     s.now(),
		Reason:        reason,
		Entities:      make([]store.Entity, 0, len(s.entities)),
		Relationships: append([]store.Relationship(nil), s.relationships...),
	}
	for _, e := range s.entities {
		snap.Entities = append(snap.Entities, store.CopyEntity(e))
	}
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].ID < snap.Entities[j].ID })
	return snap, nil
}

func (s *Store) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entities := make(map[string]store.Entity, len(snap.Entities))
	for _, e := range snap.Entities {
		entities[e.ID] = store.CopyEntity(e)
	}
	s.entities = entities
	s.relationships = append([]store.Relationship(nil), snap.Relationships...)
	return nil
}

func copyDecision(d store.Decision) store.Decision {
	copied := d
	copied.Options = append([]store.Option(nil), d.Options...)
	for i, opt := range copied.Options {
		copied.Options[i].AssumedFacts = append([]string(nil), opt.AssumedFacts...)
	}
	copied.RejectedIDs = append([]string(nil), d.RejectedIDs...)
	return copied
}
