package mcp

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"canonkeeper/internal/explain"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

type EntityInput struct {
	ID              string         `json:"id" jsonschema:"stable entity id"`
	Type            string         `json:"type" jsonschema:"entity type from the world schema"`
	Name            string         `json:"name" jsonschema:"display name"`
	Attributes      map[string]any `json:"attributes,omitempty" jsonschema:"attribute values per the entity type"`
	Tags            []string       `json:"tags,omitempty"`
	Step            string         `json:"step,omitempty" jsonschema:"world-building stage making this change"`
	ExpectedVersion int64          `json:"expected_version" jsonschema:"version last seen; 0 to create"`
	ConfirmWarnings bool           `json:"confirm_warnings,omitempty" jsonschema:"commit even if validation warned"`
}

type RelationshipInput struct {
	SourceID        string `json:"source_id"`
	TargetID        string `json:"target_id"`
	Type            string `json:"type" jsonschema:"relationship type from the world schema"`
	ConfirmWarnings bool   `json:"confirm_warnings,omitempty"`
}

type DeleteEntityInput struct {
	ID              string `json:"id"`
	ExpectedVersion int64  `json:"expected_version"`
}

type OptionInput struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AssumedFacts []string `json:"assumed_facts,omitempty"`
}

type DecisionInput struct {
	Step          string        `json:"step"`
	Options       []OptionInput `json:"options_considered"`
	ChosenID      string        `json:"chosen_option_id"`
	Rationale     string        `json:"rationale,omitempty"`
	EntityID      string        `json:"entity_id,omitempty" jsonschema:"entity the chosen option was committed as"`
	EntityVersion int64         `json:"entity_version,omitempty"`
}

type CommitChoiceInput struct {
	Entity   EntityInput   `json:"entity"`
	Decision DecisionInput `json:"decision"`
}

type GetEntityInput struct {
	ID string `json:"id"`
}

type ListEntitiesInput struct {
	Type string `json:"type,omitempty" jsonschema:"entity type filter"`
}

type SnapshotInput struct {
	Reason string `json:"reason"`
}

type RestoreInput struct {
	SnapshotID string `json:"snapshot_id"`
}

type emptyInput struct{}

type ValidationOutput struct {
	Status      string              `json:"status"`
	Committed   bool                `json:"committed"`
	Version     int64               `json:"version,omitempty"`
	Explanation explain.Explanation `json:"explanation"`
	Findings    []validate.Message  `json:"findings,omitempty"`
}

type EntityOutput struct {
	Entity        store.Entity         `json:"entity"`
	Relationships []store.Relationship `json:"relationships,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "propose_entity",
		Description: "Validate a proposed entity against canon without committing it",
	}, s.handleProposeEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "commit_entity",
		Description: "Validate and commit an entity write with optimistic version checking",
	}, s.handleCommitEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "commit_relationship",
		Description: "Validate and commit a relationship between two entities",
	}, s.handleCommitRelationship)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "commit_choice",
		Description: "Commit an entity write and record the decision behind it; rolls the write back if the decision cannot be recorded",
	}, s.handleCommitChoice)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_entity",
		Description: "Tombstone an entity behind a safety snapshot",
	}, s.handleDeleteEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entity",
		Description: "Retrieve an entity and its relationships",
	}, s.handleGetEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_entities",
		Description: "List entities with an optional type filter",
	}, s.handleListEntities)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "record_decision",
		Description: "Append a decision to the world's ledger",
	}, s.handleRecordDecision)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_decisions",
		Description: "List the decision ledger in order",
	}, s.handleListDecisions)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_snapshot",
		Description: "Take and store a snapshot of the world",
	}, s.handleCreateSnapshot)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_snapshots",
		Description: "List stored snapshots",
	}, s.handleListSnapshots)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "restore_snapshot",
		Description: "Replace the world with a stored snapshot",
	}, s.handleRestoreSnapshot)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_schema",
		Description: "Return the world schema",
	}, s.handleGetSchema)
}

func (s *Server) handleProposeEntity(ctx context.Context, req *sdk.CallToolRequest, input EntityInput) (*sdk.CallToolResult, ValidationOutput, error) {
	cand, err := candidateFromInput(input)
	if err != nil {
		return nil, ValidationOutput{}, err
	}
	report, err := s.pipe.Validate(ctx, cand)
	if err != nil {
		return nil, ValidationOutput{}, err
	}
	return nil, outputFromReport(report, false, 0), nil
}

func (s *Server) handleCommitEntity(ctx context.Context, req *sdk.CallToolRequest, input EntityInput) (*sdk.CallToolResult, ValidationOutput, error) {
	cand, err := candidateFromInput(input)
	if err != nil {
		return nil, ValidationOutput{}, err
	}
	committed, report, err := s.pipe.Commit(ctx, cand, input.ExpectedVersion, input.ConfirmWarnings)
	if err != nil {
		s.log.Warn("commit failed", "entity", input.ID, "error", err)
		return nil, ValidationOutput{Explanation: explain.Error(err)}, nil
	}
	out := outputFromReport(report, committed != nil, 0)
	if committed != nil {
		out.Version = committed.Version
		s.log.Info("entity committed", "entity", committed.ID, "version", committed.Version)
	}
	return nil, out, nil
}

func (s *Server) handleCommitRelationship(ctx context.Context, req *sdk.CallToolRequest, input RelationshipInput) (*sdk.CallToolResult, ValidationOutput, error) {
	relType, ok := s.schema.RelationshipTypeByName(input.Type)
	directed := ok && relType.Directed
	cand := validate.Candidate{Relationships: []store.Relationship{{
		SourceID: input.SourceID,
		TargetID: input.TargetID,
		Type:     input.Type,
		Directed: directed,
	}}}
	_, report, err := s.pipe.Commit(ctx, cand, 0, input.ConfirmWarnings)
	if err != nil {
		return nil, ValidationOutput{Explanation: explain.Error(err)}, nil
	}
	committed := !report.Failed() && (report.Status != validate.StatusWarn || input.ConfirmWarnings)
	return nil, outputFromReport(report, committed, 0), nil
}

func (s *Server) handleCommitChoice(ctx context.Context, req *sdk.CallToolRequest, input CommitChoiceInput) (*sdk.CallToolResult, ValidationOutput, error) {
	var prior *store.Entity
	current, err := s.canon.GetEntity(ctx, input.Entity.ID)
	if err == nil {
		prior = current
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, ValidationOutput{}, err
	}

	cand, err := candidateFromInput(input.Entity)
	if err != nil {
		return nil, ValidationOutput{}, err
	}
	committed, report, err := s.pipe.Commit(ctx, cand, input.Entity.ExpectedVersion, input.Entity.ConfirmWarnings)
	if err != nil {
		return nil, ValidationOutput{Explanation: explain.Error(err)}, nil
	}
	if committed == nil {
		return nil, outputFromReport(report, false, 0), nil
	}

	if _, err := s.ledger.RecordForCommit(ctx, decisionFromInput(input.Decision), committed, prior); err != nil {
		s.log.Warn("decision rejected, commit rolled back", "entity", committed.ID, "error", err)
		return nil, ValidationOutput{Explanation: explain.Error(err)}, nil
	}

	out := outputFromReport(report, true, committed.Version)
	return nil, out, nil
}

func (s *Server) handleDeleteEntity(ctx context.Context, req *sdk.CallToolRequest, input DeleteEntityInput) (*sdk.CallToolResult, ValidationOutput, error) {
	_, err := s.backups.WithSnapshot(ctx, fmt.Sprintf("delete %s", input.ID), func(ctx context.Context) error {
		_, err := s.pipe.Tombstone(ctx, input.ID, input.ExpectedVersion)
		return err
	})
	if err != nil {
		return nil, ValidationOutput{Explanation: explain.Error(err)}, nil
	}
	return nil, ValidationOutput{
		Status:      string(validate.StatusPass),
		Committed:   true,
		Explanation: explain.Explanation{Message: "Removed from the world. A snapshot from just before the deletion was kept."},
	}, nil
}

func (s *Server) handleGetEntity(ctx context.Context, req *sdk.CallToolRequest, input GetEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if input.ID == "" {
		return nil, EntityOutput{}, fmt.Errorf("id is required")
	}
	entity, err := s.canon.GetEntity(ctx, input.ID)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	rels, err := s.canon.RelationshipsFor(ctx, input.ID)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, EntityOutput{Entity: *entity, Relationships: rels}, nil
}

type ListEntitiesOutput struct {
	Entities []store.Entity `json:"entities"`
}

func (s *Server) handleListEntities(ctx context.Context, req *sdk.CallToolRequest, input ListEntitiesInput) (*sdk.CallToolResult, ListEntitiesOutput, error) {
	entities, err := s.canon.ListEntities(ctx, input.Type)
	if err != nil {
		return nil, ListEntitiesOutput{}, err
	}
	return nil, ListEntitiesOutput{Entities: entities}, nil
}

type RecordDecisionOutput struct {
	DecisionID  string              `json:"decision_id,omitempty"`
	Explanation explain.Explanation `json:"explanation"`
}

func (s *Server) handleRecordDecision(ctx context.Context, req *sdk.CallToolRequest, input DecisionInput) (*sdk.CallToolResult, RecordDecisionOutput, error) {
	id, err := s.ledger.Record(ctx, decisionFromInput(input))
	if err != nil {
		return nil, RecordDecisionOutput{Explanation: explain.Error(err)}, nil
	}
	return nil, RecordDecisionOutput{DecisionID: id, Explanation: explain.Explanation{Message: "Choice recorded."}}, nil
}

type ListDecisionsOutput struct {
	Decisions []store.Decision `json:"decisions"`
}

func (s *Server) handleListDecisions(ctx context.Context, req *sdk.CallToolRequest, input emptyInput) (*sdk.CallToolResult, ListDecisionsOutput, error) {
	decisions, err := s.ledger.List(ctx)
	if err != nil {
		return nil, ListDecisionsOutput{}, err
	}
	return nil, ListDecisionsOutput{Decisions: decisions}, nil
}

type SnapshotOutput struct {
	SnapshotID  string              `json:"snapshot_id,omitempty"`
	Explanation explain.Explanation `json:"explanation"`
}

func (s *Server) handleCreateSnapshot(ctx context.Context, req *sdk.CallToolRequest, input SnapshotInput) (*sdk.CallToolResult, SnapshotOutput, error) {
	snap, err := s.backups.Take(ctx, input.Reason)
	if err != nil {
		return nil, SnapshotOutput{Explanation: explain.Error(err)}, nil
	}
	return nil, SnapshotOutput{SnapshotID: snap.ID, Explanation: explain.Explanation{Message: "Snapshot stored."}}, nil
}

type ListSnapshotsOutput struct {
	Snapshots []backupInfo `json:"snapshots"`
}

type backupInfo struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
	Entities  int    `json:"entities"`
}

func (s *Server) handleListSnapshots(ctx context.Context, req *sdk.CallToolRequest, input emptyInput) (*sdk.CallToolResult, ListSnapshotsOutput, error) {
	infos, err := s.backups.List(ctx)
	if err != nil {
		return nil, ListSnapshotsOutput{}, err
	}
	out := ListSnapshotsOutput{Snapshots: make([]backupInfo, 0, len(infos))}
	for _, info := range infos {
		out.Snapshots = append(out.Snapshots, backupInfo(info))
	}
	return nil, out, nil
}

func (s *Server) handleRestoreSnapshot(ctx context.Context, req *sdk.CallToolRequest, input RestoreInput) (*sdk.CallToolResult, SnapshotOutput, error) {
	if err := s.backups.Restore(ctx, input.SnapshotID); err != nil {
		return nil, SnapshotOutput{Explanation: explain.Error(err)}, nil
	}
	s.log.Info("snapshot restored", "snapshot", input.SnapshotID)
	return nil, SnapshotOutput{SnapshotID: input.SnapshotID, Explanation: explain.Explanation{Message: "The world was restored from the snapshot."}}, nil
}

type SchemaOutput struct {
	Version           int      `json:"version"`
	EntityTypes       []string `json:"entity_types"`
	RelationshipTypes []string `json:"relationship_types"`
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input emptyInput) (*sdk.CallToolResult, SchemaOutput, error) {
	out := SchemaOutput{Version: s.schema.Version}
	for _, entityType := range s.schema.EntityTypes {
		out.EntityTypes = append(out.EntityTypes, entityType.Name)
	}
	for _, relType := range s.schema.RelationshipTypes {
		out.RelationshipTypes = append(out.RelationshipTypes, relType.Name)
	}
	return nil, out, nil
}

func candidateFromInput(input EntityInput) (validate.Candidate, error) {
	if input.ID == "" {
		return validate.Candidate{}, fmt.Errorf("id is required")
	}
	if input.Type == "" {
		return validate.Candidate{}, fmt.Errorf("type is required")
	}
	return validate.Candidate{Entity: &store.Entity{
		ID:         input.ID,
		Type:       input.Type,
		Name:       input.Name,
		Attributes: input.Attributes,
		Tags:       input.Tags,
		Step:       input.Step,
	}}, nil
}

func decisionFromInput(input DecisionInput) store.Decision {
	d := store.Decision{
		Step:          input.Step,
		ChosenID:      input.ChosenID,
		Rationale:     input.Rationale,
		EntityID:      input.EntityID,
		EntityVersion: input.EntityVersion,
	}
	for _, opt := range input.Options {
		d.Options = append(d.Options, store.Option{
			ID:           opt.ID,
			Description:  opt.Description,
			AssumedFacts: opt.AssumedFacts,
		})
	}
	return d
}

func outputFromReport(report *validate.Report, committed bool, version int64) ValidationOutput {
	return ValidationOutput{
		Status:      string(report.Status),
		Committed:   committed,
		Version:     version,
		Explanation: explain.Report(report),
		Findings:    report.Messages(),
	}
}
