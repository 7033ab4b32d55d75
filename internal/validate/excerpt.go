package validate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"canonkeeper/internal/store"
)

// maxExcerptFacts bounds the canon slice handed to the oracle.
const maxExcerptFacts = 24

// buildExcerpt assembles the relevance-filtered canon slice for the
// oracle: the candidate's relationship neighborhood first, then other
// active entities of the same type, capped at maxExcerptFacts.
func buildExcerpt(ctx context.Context, canon store.Reader, cand Candidate) (Excerpt, error) {
	var excerpt Excerpt
	seen := make(map[string]struct{})

	add := func(e *store.Entity) {
		if e == nil || e.Tombstoned {
			return
		}
		if _, dup := seen[e.ID]; dup {
			return
		}
		seen[e.ID] = struct{}{}
		if len(excerpt.WorldFacts) >= maxExcerptFacts {
			excerpt.Truncated = true
			return
		}
		excerpt.WorldFacts = append(excerpt.WorldFacts, factLine(e))
	}

	neighborIDs := make(map[string]struct{})
	collectNeighbors := func(entityID string) error {
		rels, err := canon.RelationshipsFor(ctx, entityID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			neighborIDs[rel.SourceID] = struct{}{}
			neighborIDs[rel.TargetID] = struct{}{}
		}
		return nil
	}

	if cand.Entity != nil {
		if err := collectNeighbors(cand.Entity.ID); err != nil {
			return Excerpt{}, err
		}
	}
	for _, rel := range cand.Relationships {
		neighborIDs[rel.SourceID] = struct{}{}
		neighborIDs[rel.TargetID] = struct{}{}
	}

	ordered := make([]string, 0, len(neighborIDs))
	for id := range neighborIDs {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	for _, id := range ordered {
		if cand.Entity != nil && id == cand.Entity.ID {
			continue
		}
		e, err := canon.GetEntity(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return Excerpt{}, err
		}
		add(e)
	}

	if cand.Entity != nil {
		peers, err := canon.ListEntities(ctx, cand.Entity.Type)
		if err != nil {
			return Excerpt{}, err
		}
		for i := range peers {
			if peers[i].ID == cand.Entity.ID {
				continue
			}
			add(&peers[i])
		}
	}

	return excerpt, nil
}

func factLine(e *store.Entity) string {
	var parts []string
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, e.Attributes[name]))
	}
	line := fmt.Sprintf("%s %q", e.Type, e.Name)
	if len(parts) > 0 {
		line += ": " + strings.Join(parts, ", ")
	}
	return line
}
