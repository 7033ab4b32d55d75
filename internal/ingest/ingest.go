package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/config"
	"canonkeeper/internal/parser"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

type Options struct {
	// Step labels the world-building stage recorded on imported entities.
	Step string

	// ConfirmWarnings commits candidates whose validation warned. Hard
	// failures are always skipped.
	ConfirmWarnings bool

	Logger *slog.Logger
}

type FileIssue struct {
	File     string
	EntityID string
	Messages []validate.Message
	Err      error
}

type Result struct {
	FilesSeen              int
	EntitiesCommitted      int
	RelationshipsCommitted int
	Skipped                []FileIssue
}

// Run bulk-imports a directory of lore files. The whole batch is a
// destructive operation, so it runs inside a backup snapshot: if the
// snapshot cannot be taken, nothing is imported.
//
// Entities commit first and relationships after, so a file may
// reference an entity defined later in the same batch. The entity pass
// retries rejected files in rounds until no round makes progress, which
// resolves forward references among the batch's own documents.
func Run(ctx context.Context, dir string, schema *config.WorldSchema, pipe *validate.Pipeline, canon store.Store, backups *backup.Manager, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	files, err := collectFiles(dir)
	if err != nil {
		return nil, err
	}

	result := &Result{FilesSeen: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	_, err = backups.WithSnapshot(ctx, fmt.Sprintf("bulk import of %s", dir), func(ctx context.Context) error {
		docs := make([]*parser.Document, 0, len(files))
		for _, file := range files {
			doc, err := parser.ParseFile(file)
			if err != nil {
				log.Warn("skipping unparseable file", "file", file, "error", err)
				result.Skipped = append(result.Skipped, FileIssue{File: file, Err: err})
				continue
			}
			docs = append(docs, doc)
		}

		pending := docs
		for len(pending) > 0 {
			var retry []*parser.Document
			var issues []FileIssue
			for _, doc := range pending {
				issue, err := importEntity(ctx, doc, schema, pipe, canon, opts)
				if err != nil {
					return err
				}
				if issue != nil {
					retry = append(retry, doc)
					issues = append(issues, *issue)
					continue
				}
				result.EntitiesCommitted++
			}
			if len(retry) == len(pending) {
				result.Skipped = append(result.Skipped, issues...)
				break
			}
			pending = retry
		}

		for _, doc := range docs {
			if err := importRelationships(ctx, doc, schema, pipe, opts, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("import finished",
		"files", result.FilesSeen,
		"entities", result.EntitiesCommitted,
		"relationships", result.RelationshipsCommitted,
		"skipped", len(result.Skipped))
	return result, nil
}

func importEntity(ctx context.Context, doc *parser.Document, schema *config.WorldSchema, pipe *validate.Pipeline, canon store.Store, opts Options) (*FileIssue, error) {
	attrs := doc.Attributes()
	if entityType, ok := schema.EntityTypeByName(doc.EntityType); ok {
		normalizeMappedFields(attrs, entityType)
		// The frontmatter title doubles as the name attribute when the
		// type declares one and the file does not set it explicitly.
		if _, declared := entityType.AttributeByName("name"); declared {
			if _, set := attrs["name"]; !set {
				attrs["name"] = doc.Title
			}
		}
	}
	if doc.Body != "" {
		attrs["body"] = doc.Body
	}

	entity := store.Entity{
		ID:         doc.ID,
		Type:       doc.EntityType,
		Name:       doc.Title,
		Attributes: attrs,
		Tags:       doc.Tags,
		Step:       opts.Step,
	}

	var expectedVersion int64
	current, err := canon.GetEntity(ctx, doc.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("checking current version of %s: %w", doc.ID, err)
	default:
		expectedVersion = current.Version
	}

	committed, report, err := pipe.Commit(ctx, validate.Candidate{Entity: &entity}, expectedVersion, opts.ConfirmWarnings)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", doc.SourceFile, err)
	}
	if committed == nil {
		return &FileIssue{
			File:     doc.SourceFile,
			EntityID: doc.ID,
			Messages: report.Messages(),
		}, nil
	}
	return nil, nil
}

func importRelationships(ctx context.Context, doc *parser.Document, schema *config.WorldSchema, pipe *validate.Pipeline, opts Options, result *Result) error {
	entityType, ok := schema.EntityTypeByName(doc.EntityType)
	if !ok {
		return nil
	}

	for _, mapping := range entityType.FieldMappings {
		for _, target := range fieldTargets(doc.Frontmatter[mapping.Field]) {
			relType, ok := schema.RelationshipTypeByName(mapping.Relationship)
			if !ok {
				continue
			}
			rel := store.Relationship{
				SourceID: doc.ID,
				TargetID: parser.Slug(target),
				Type:     relType.Name,
				Directed: relType.Directed,
			}

			_, report, err := pipe.Commit(ctx, validate.Candidate{Relationships: []store.Relationship{rel}}, 0, opts.ConfirmWarnings)
			if err != nil {
				return fmt.Errorf("linking %s to %s: %w", doc.ID, rel.TargetID, err)
			}
			if report.Failed() || (report.Status == validate.StatusWarn && !opts.ConfirmWarnings) {
				result.Skipped = append(result.Skipped, FileIssue{
					File:     doc.SourceFile,
					EntityID: doc.ID,
					Messages: report.Messages(),
				})
				continue
			}
			result.RelationshipsCommitted++
		}
	}
	return nil
}

// normalizeMappedFields rewrites relationship-mapped fields to the slug
// ids the importer links against, so reference attributes and the
// relationships they produce stay in agreement.
func normalizeMappedFields(attrs map[string]any, entityType *config.EntityType) {
	for _, mapping := range entityType.FieldMappings {
		switch value := attrs[mapping.Field].(type) {
		case string:
			attrs[mapping.Field] = parser.Slug(value)
		case []any:
			normalized := make([]any, len(value))
			for i, item := range value {
				if s, ok := item.(string); ok {
					normalized[i] = parser.Slug(s)
				} else {
					normalized[i] = item
				}
			}
			attrs[mapping.Field] = normalized
		}
	}
}

func fieldTargets(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []any:
		var targets []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				targets = append(targets, s)
			}
		}
		return targets
	default:
		return nil
	}
}

func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
