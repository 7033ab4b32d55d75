package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
	"canonkeeper/internal/store/memory"
	"canonkeeper/internal/validate"
)

const importSchema = `version: 1
entity_types:
  - name: character
    attributes:
      - { name: name, kind: string }
      - { name: status, kind: enum, values: [alive, dead] }
      - { name: home, kind: reference }
      - { name: body, kind: string }
    field_mappings:
      - { field: home, relationship: LOCATED_IN }
  - name: place
    attributes:
      - { name: body, kind: string }
relationship_types:
  - name: LOCATED_IN
    source_types: [character]
    target_types: [place]
    directed: true
`

type fixture struct {
	dir     string
	canon   store.Store
	pipe    *validate.Pipeline
	schema  *config.WorldSchema
	backups *backup.Manager
	storage *backup.FileStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	schema, err := config.ParseWorldSchema([]byte(importSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	canon := memory.New()
	storage, err := backup.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}
	return &fixture{
		dir:     t.TempDir(),
		canon:   canon,
		pipe:    validate.NewPipeline(schema, canon, nil, 0),
		schema:  schema,
		backups: backup.NewManager(canon, storage),
		storage: storage,
	}
}

func (f *fixture) writeFile(t *testing.T, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRun_ForwardReferencesResolve(t *testing.T) {
	f := newFixture(t)
	// aaa-mira.md sorts before the place it references; the two-pass
	// import must still link them.
	f.writeFile(t, "aaa-mira.md", "---\ntitle: Mira\ntype: character\nhome: Hilltop\n---\n")
	f.writeFile(t, "zzz-hilltop.md", "---\ntitle: Hilltop\ntype: place\n---\n")

	result, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, f.backups, Options{Step: "setting"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.EntitiesCommitted != 2 {
		t.Fatalf("expected 2 entities, got %d (skipped: %+v)", result.EntitiesCommitted, result.Skipped)
	}
	if result.RelationshipsCommitted != 1 {
		t.Fatalf("expected 1 relationship, got %d (skipped: %+v)", result.RelationshipsCommitted, result.Skipped)
	}

	rels, err := f.canon.RelationshipsFor(context.Background(), "mira")
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rels) != 1 || rels[0].TargetID != "hilltop" || rels[0].Type != "LOCATED_IN" {
		t.Fatalf("unexpected relationships: %+v", rels)
	}

	mira, err := f.canon.GetEntity(context.Background(), "mira")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if mira.Step != "setting" {
		t.Fatalf("expected step label, got %q", mira.Step)
	}
	if mira.Attributes["home"] != "hilltop" {
		t.Fatalf("expected normalized reference, got %#v", mira.Attributes["home"])
	}
}

func TestRun_InvalidFilesAreSkippedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "good.md", "---\ntitle: Hilltop\ntype: place\n---\n")
	f.writeFile(t, "broken.md", "no frontmatter at all")
	f.writeFile(t, "wrong-type.md", "---\ntitle: Smolder\ntype: dragon\n---\n")
	f.writeFile(t, "notes.txt", "not a lore file")

	result, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, f.backups, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FilesSeen != 3 {
		t.Fatalf("expected 3 markdown files, got %d", result.FilesSeen)
	}
	if result.EntitiesCommitted != 1 {
		t.Fatalf("expected 1 entity, got %d", result.EntitiesCommitted)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("expected 2 skipped files, got %+v", result.Skipped)
	}
}

func TestRun_ReimportUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "mira.md", "---\ntitle: Mira\ntype: character\nstatus: alive\n---\n")

	if _, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, f.backups, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	f.writeFile(t, "mira.md", "---\ntitle: Mira\ntype: character\nstatus: dead\n---\n")
	if _, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, f.backups, Options{}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	mira, err := f.canon.GetEntity(context.Background(), "mira")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if mira.Attributes["status"] != "dead" || mira.Version != 2 {
		t.Fatalf("expected in-place update to version 2, got %+v", mira)
	}
}

func TestRun_SnapshotTakenBeforeImport(t *testing.T) {
	f := newFixture(t)
	seedPlace(t, f.canon)
	f.writeFile(t, "mira.md", "---\ntitle: Mira\ntype: character\n---\n")

	if _, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, f.backups, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	infos, err := f.storage.List(context.Background())
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(infos))
	}
	if infos[0].Entities != 1 {
		t.Fatalf("snapshot should hold pre-import canon, got %d entities", infos[0].Entities)
	}
}

func TestRun_BackupFailureStopsImport(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "mira.md", "---\ntitle: Mira\ntype: character\n---\n")
	broken := backup.NewManager(f.canon, brokenStorage{})

	_, err := Run(context.Background(), f.dir, f.schema, f.pipe, f.canon, broken, Options{})
	if !errors.Is(err, backup.ErrBackupFailed) {
		t.Fatalf("expected backup failure, got %v", err)
	}
	if _, err := f.canon.GetEntity(context.Background(), "mira"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("nothing may be imported without a backup")
	}
}

func TestRun_TitleSatisfiesRequiredName(t *testing.T) {
	const strictSchema = `version: 1
entity_types:
  - name: character
    attributes:
      - { name: name, kind: string, required: true }
      - { name: body, kind: string }
`
	schema, err := config.ParseWorldSchema([]byte(strictSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	canon := memory.New()
	storage, err := backup.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}
	pipe := validate.NewPipeline(schema, canon, nil, 0)
	backups := backup.NewManager(canon, storage)

	dir := t.TempDir()
	write := func(name, contents string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("mira.md", "---\ntitle: Mira\ntype: character\n---\n\nMira grew up on the hill.\n")
	write("regent.md", "---\ntitle: The Regent\ntype: character\nname: Saro\n---\n")

	result, err := Run(context.Background(), dir, schema, pipe, canon, backups, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.EntitiesCommitted != 2 {
		t.Fatalf("expected 2 entities, got %d (skipped: %+v)", result.EntitiesCommitted, result.Skipped)
	}

	mira, err := canon.GetEntity(context.Background(), "mira")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if mira.Attributes["name"] != "Mira" {
		t.Fatalf("expected title to fill the name attribute, got %#v", mira.Attributes["name"])
	}
	if body, _ := mira.Attributes["body"].(string); body == "" {
		t.Fatalf("expected body attribute, got %#v", mira.Attributes["body"])
	}

	regent, err := canon.GetEntity(context.Background(), "the-regent")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if regent.Attributes["name"] != "Saro" {
		t.Fatalf("explicit name must win over the title, got %#v", regent.Attributes["name"])
	}
}

type brokenStorage struct{}

func (brokenStorage) Save(ctx context.Context, snap *store.Snapshot) error {
	return errors.New("disk full")
}

func (brokenStorage) Load(ctx context.Context, id string) (*store.Snapshot, error) {
	return nil, store.ErrNotFound
}

func (brokenStorage) List(ctx context.Context) ([]backup.Info, error) { return nil, nil }

func seedPlace(t *testing.T, canon store.Store) {
	t.Helper()
	if _, err := canon.PutEntity(context.Background(), store.Entity{ID: "hilltop", Type: "place", Name: "Hilltop"}, 0); err != nil {
		t.Fatalf("seed place: %v", err)
	}
}
