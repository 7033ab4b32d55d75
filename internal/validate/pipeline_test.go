package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"canonkeeper/internal/store"
	"canonkeeper/internal/store/memory"
)

type stubOracle struct {
	verdict Verdict
	err     error
	calls   int

	waitForCtx bool
}

func (o *stubOracle) Check(ctx context.Context, diff Diff, excerpt Excerpt) (Verdict, error) {
	o.calls++
	if o.waitForCtx {
		<-ctx.Done()
		return Verdict{}, ctx.Err()
	}
	return o.verdict, o.err
}

func TestPipeline_SchemaFailureShortCircuits(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{verdict: Verdict{Status: StatusPass}}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Entity: &store.Entity{ID: "d-1", Type: "dragon", Name: "Smolder"}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusFail {
		t.Fatalf("expected fail, got %s", report.Status)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected later layers to be skipped, got %d results", len(report.Results))
	}
	if oracle.calls != 0 {
		t.Fatalf("oracle consulted despite schema failure")
	}
}

func TestPipeline_RuleFailureSkipsOracle(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{verdict: Verdict{Status: StatusPass}}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Relationships: []store.Relationship{{SourceID: "a", TargetID: "b", Type: "LOCATED_IN", Directed: true}}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusFail {
		t.Fatalf("expected fail, got %s", report.Status)
	}
	if oracle.calls != 0 {
		t.Fatalf("oracle consulted despite rule failure")
	}
}

func TestPipeline_OracleConsultedOnce(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{verdict: Verdict{Status: StatusPass}}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusPass {
		t.Fatalf("expected pass, got %+v", report)
	}
	if oracle.calls != 1 {
		t.Fatalf("expected exactly one oracle call, got %d", oracle.calls)
	}
}

func TestPipeline_OracleErrorDegradesToWarning(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{err: errors.New("connection refused")}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusWarn {
		t.Fatalf("expected warn, got %s", report.Status)
	}
	if !hasCode(report.Messages(), CodeOracleUnavailable) {
		t.Fatalf("expected oracle unavailable warning, got %+v", report.Messages())
	}
}

func TestPipeline_OracleTimeoutDegradesToWarning(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{waitForCtx: true}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, 10*time.Millisecond)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusWarn || !hasCode(report.Messages(), CodeOracleUnavailable) {
		t.Fatalf("expected timeout to degrade to a warning, got %+v", report)
	}
}

func TestPipeline_NilOracleSkipsSemanticLayer(t *testing.T) {
	canon := memory.New()
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, nil, 0)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	report, err := pipe.Validate(context.Background(), cand)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Status != StatusPass {
		t.Fatalf("expected pass with oracle disabled, got %s", report.Status)
	}
	if !hasCode(report.Messages(), CodeOracleSkipped) {
		t.Fatalf("expected skip notice, got %+v", report.Messages())
	}
}

func TestPipeline_OracleFailBlocksCommit(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{verdict: Verdict{Status: StatusFail, Explanation: "Mira died at the Siege two chapters ago."}}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	committed, report, err := pipe.Commit(context.Background(), cand, 0, false)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed != nil {
		t.Fatalf("expected nothing committed")
	}
	if report.Status != StatusFail || !hasCode(report.Messages(), CodeSemanticConcern) {
		t.Fatalf("expected semantic failure, got %+v", report)
	}
	if _, err := canon.GetEntity(context.Background(), "mira"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("entity reached the store despite failed validation")
	}
}

func TestPipeline_WarnRequiresConfirmation(t *testing.T) {
	canon := memory.New()
	oracle := &stubOracle{verdict: Verdict{Status: StatusWarn, Explanation: "An unusually young ruler."}}
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, oracle, time.Second)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}

	committed, report, err := pipe.Commit(context.Background(), cand, 0, false)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed != nil || report.Status != StatusWarn {
		t.Fatalf("expected unconfirmed warning to hold the commit, got %+v", report)
	}

	committed, _, err = pipe.Commit(context.Background(), cand, 0, true)
	if err != nil {
		t.Fatalf("confirmed commit: %v", err)
	}
	if committed == nil || committed.Version != 1 {
		t.Fatalf("expected confirmed commit at version 1, got %+v", committed)
	}
}

func TestPipeline_StaleVersionConflicts(t *testing.T) {
	canon := memory.New()
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, nil, 0)

	cand := Candidate{Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}}}
	committed, _, err := pipe.Commit(context.Background(), cand, 0, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A concurrent writer advances the version underneath us.
	updated := store.CopyEntity(*committed)
	if _, err := canon.PutEntity(context.Background(), updated, committed.Version); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	_, _, err = pipe.Commit(context.Background(), cand, committed.Version, false)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestPipeline_CommitWritesRelationships(t *testing.T) {
	canon := memory.New()
	pipe := NewPipeline(loadSchema(t, rulesSchema), canon, nil, 0)

	seedEntity(t, canon, store.Entity{ID: "hilltop", Type: "place", Name: "Hilltop"})
	cand := Candidate{
		Entity: &store.Entity{ID: "mira", Type: "character", Name: "Mira", Attributes: map[string]any{"name": "Mira"}},
		Relationships: []store.Relationship{
			{SourceID: "mira", TargetID: "hilltop", Type: "LOCATED_IN", Directed: true},
		},
	}

	committed, report, err := pipe.Commit(context.Background(), cand, 0, false)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed == nil || report.Failed() {
		t.Fatalf("expected commit to succeed, got %+v", report)
	}

	rels, err := canon.RelationshipsFor(context.Background(), "mira")
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rels) != 1 || rels[0].Type != "LOCATED_IN" {
		t.Fatalf("expected the relationship to land, got %+v", rels)
	}
}
