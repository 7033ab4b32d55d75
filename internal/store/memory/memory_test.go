package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canonkeeper/internal/store"
)

func TestPutEntity_CreateAndUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character", Name: "Mira"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.False(t, created.CreatedAt.IsZero())

	updated, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character", Name: "Mira the Bold"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, err := s.GetEntity(ctx, "mira")
	require.NoError(t, err)
	assert.Equal(t, "Mira the Bold", got.Name)
}

func TestPutEntity_VersionConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character"}, 0)
	require.NoError(t, err)

	t.Run("stale update", func(t *testing.T) {
		_, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character"}, 5)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("create over existing", func(t *testing.T) {
		_, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character"}, 0)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("update of missing entity", func(t *testing.T) {
		_, err := s.PutEntity(ctx, store.Entity{ID: "ghost", Type: "character"}, 3)
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestTombstoneEntity(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character"}, 0)
	require.NoError(t, err)

	_, err = s.TombstoneEntity(ctx, "mira", created.Version+7)
	assert.ErrorIs(t, err, store.ErrConflict)

	gone, err := s.TombstoneEntity(ctx, "mira", created.Version)
	require.NoError(t, err)
	assert.True(t, gone.Tombstoned)
	assert.Equal(t, created.Version+1, gone.Version)

	// The record survives as a tombstone; it is never erased.
	got, err := s.GetEntity(ctx, "mira")
	require.NoError(t, err)
	assert.True(t, got.Tombstoned)

	_, err = s.TombstoneEntity(ctx, "nobody", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListEntities_TypeFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, e := range []store.Entity{
		{ID: "mira", Type: "character"},
		{ID: "tam", Type: "character"},
		{ID: "hilltop", Type: "place"},
	} {
		_, err := s.PutEntity(ctx, e, 0)
		require.NoError(t, err)
	}

	characters, err := s.ListEntities(ctx, "Character")
	require.NoError(t, err)
	assert.Len(t, characters, 2)

	all, err := s.ListEntities(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPutRelationship(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character"}, 0)
	require.NoError(t, err)
	_, err = s.PutEntity(ctx, store.Entity{ID: "hilltop", Type: "place"}, 0)
	require.NoError(t, err)

	rel := store.Relationship{SourceID: "mira", TargetID: "hilltop", Type: "LOCATED_IN", Directed: true}
	require.NoError(t, s.PutRelationship(ctx, rel))
	// Idempotent: the same edge is stored once.
	require.NoError(t, s.PutRelationship(ctx, rel))

	rels, err := s.RelationshipsFor(ctx, "hilltop")
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	err = s.PutRelationship(ctx, store.Relationship{SourceID: "mira", TargetID: "nowhere", Type: "LOCATED_IN"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character", Attributes: map[string]any{"status": "alive"}}, 0)
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "before the battle")
	require.NoError(t, err)
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, "before the battle", snap.Reason)
	assert.NotEmpty(t, snap.ID)

	// Mutations after the snapshot must not reach it.
	mutated := store.CopyEntity(*created)
	mutated.Attributes["status"] = "dead"
	_, err = s.PutEntity(ctx, mutated, created.Version)
	require.NoError(t, err)

	assert.Equal(t, "alive", snap.Entities[0].Attributes["status"])
}

func TestRestore_ReplacesCanonWholesale(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.PutEntity(ctx, store.Entity{ID: "mira", Type: "character", Attributes: map[string]any{"status": "alive"}}, 0)
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "checkpoint")
	require.NoError(t, err)

	mutated := store.CopyEntity(*created)
	mutated.Attributes["status"] = "dead"
	_, err = s.PutEntity(ctx, mutated, created.Version)
	require.NoError(t, err)
	_, err = s.PutEntity(ctx, store.Entity{ID: "tam", Type: "character"}, 0)
	require.NoError(t, err)

	require.NoError(t, s.Restore(ctx, snap))

	got, err := s.GetEntity(ctx, "mira")
	require.NoError(t, err)
	assert.Equal(t, "alive", got.Attributes["status"])

	_, err = s.GetEntity(ctx, "tam")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Error(t, s.Restore(ctx, nil))
}

func TestDecisions_AppendOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	d := store.Decision{
		ID:        "d-1",
		Timestamp: time.Now(),
		Step:      "ruler-selection",
		Options:   []store.Option{{ID: "a", Description: "Mira takes the throne"}},
		ChosenID:  "a",
	}
	require.NoError(t, s.AppendDecision(ctx, d))
	assert.Error(t, s.AppendDecision(ctx, d), "duplicate decision id must be rejected")

	decisions, err := s.ListDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "ruler-selection", decisions[0].Step)
}
