package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"canonkeeper/internal/store"
)

var (
	// ErrInvalidDecision is returned when a decision record violates its
	// own invariants; nothing is appended.
	ErrInvalidDecision = errors.New("invalid decision")
)

// Ledger is the append-only audit trail of user choices. Decisions are
// validated on the way in and immutable afterwards; a correction is a
// new superseding decision, never an edit.
type Ledger struct {
	canon store.Store
	now   func() time.Time
}

func New(canon store.Store) *Ledger {
	return &Ledger{canon: canon, now: time.Now}
}

// Record validates and appends a decision, minting its id and timestamp
// when absent. RejectedIDs is derived from the options not chosen if the
// caller left it empty.
func (l *Ledger) Record(ctx context.Context, d store.Decision) (string, error) {
	if err := validateDecision(&d); err != nil {
		return "", err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = l.now()
	}
	if len(d.RejectedIDs) == 0 {
		for _, opt := range d.Options {
			if opt.ID != d.ChosenID {
				d.RejectedIDs = append(d.RejectedIDs, opt.ID)
			}
		}
	}

	if err := l.canon.AppendDecision(ctx, d); err != nil {
		return "", fmt.Errorf("appending decision: %w", err)
	}
	return d.ID, nil
}

// RecordForCommit appends the decision behind a choice-driven canon
// commit. If the append fails the commit is rolled back so store and
// ledger never diverge: an updated entity gets its prior state written
// back, a created one is tombstoned.
func (l *Ledger) RecordForCommit(ctx context.Context, d store.Decision, committed *store.Entity, prior *store.Entity) (string, error) {
	if committed != nil {
		d.EntityID = committed.ID
		d.EntityVersion = committed.Version
	}

	id, err := l.Record(ctx, d)
	if err == nil {
		return id, nil
	}

	if committed != nil {
		if rollbackErr := l.rollback(ctx, committed, prior); rollbackErr != nil {
			return "", errors.Join(err, fmt.Errorf("rolling back %s: %w", committed.ID, rollbackErr))
		}
	}
	return "", err
}

func (l *Ledger) rollback(ctx context.Context, committed, prior *store.Entity) error {
	if prior == nil {
		_, err := l.canon.TombstoneEntity(ctx, committed.ID, committed.Version)
		return err
	}
	restored := store.CopyEntity(*prior)
	_, err := l.canon.PutEntity(ctx, restored, committed.Version)
	return err
}

func (l *Ledger) List(ctx context.Context) ([]store.Decision, error) {
	return l.canon.ListDecisions(ctx)
}

func validateDecision(d *store.Decision) error {
	if strings.TrimSpace(d.Step) == "" {
		return fmt.Errorf("step is required: %w", ErrInvalidDecision)
	}
	if len(d.Options) == 0 {
		return fmt.Errorf("at least one option is required: %w", ErrInvalidDecision)
	}

	optionIDs := make(map[string]struct{}, len(d.Options))
	for i, opt := range d.Options {
		if strings.TrimSpace(opt.ID) == "" {
			return fmt.Errorf("option %d has no id: %w", i, ErrInvalidDecision)
		}
		if _, dup := optionIDs[opt.ID]; dup {
			return fmt.Errorf("duplicate option id %s: %w", opt.ID, ErrInvalidDecision)
		}
		optionIDs[opt.ID] = struct{}{}
	}

	if _, ok := optionIDs[d.ChosenID]; !ok {
		return fmt.Errorf("chosen option %s is not among the options considered: %w", d.ChosenID, ErrInvalidDecision)
	}
	for _, rejected := range d.RejectedIDs {
		if rejected == d.ChosenID {
			return fmt.Errorf("option %s is both chosen and rejected: %w", rejected, ErrInvalidDecision)
		}
		if _, ok := optionIDs[rejected]; !ok {
			return fmt.Errorf("rejected option %s is not among the options considered: %w", rejected, ErrInvalidDecision)
		}
	}

	return nil
}
