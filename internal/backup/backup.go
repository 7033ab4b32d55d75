package backup

import (
	"context"
	"errors"
	"fmt"

	"canonkeeper/internal/store"
)

// ErrBackupFailed aborts a destructive operation before it runs: there
// is no proceed-without-backup path.
var ErrBackupFailed = errors.New("backup failed")

// Storage persists snapshots. It must be durable before WithSnapshot
// lets the wrapped operation run.
type Storage interface {
	Save(ctx context.Context, snap *store.Snapshot) error
	Load(ctx context.Context, id string) (*store.Snapshot, error)
	List(ctx context.Context) ([]Info, error)
}

// Info is the snapshot listing entry; contents stay on storage until
// explicitly loaded.
type Info struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
	Entities  int    `json:"entities"`
}

// Manager guarantees recoverability around operations that cannot be
// trivially undone.
type Manager struct {
	canon   store.Store
	storage Storage
}

func NewManager(canon store.Store, storage Storage) *Manager {
	return &Manager{canon: canon, storage: storage}
}

// WithSnapshot takes and durably stores a snapshot, then runs op. If the
// snapshot cannot be taken or stored, op never runs. The snapshot is
// retained whether op succeeds or fails.
func (m *Manager) WithSnapshot(ctx context.Context, reason string, op func(ctx context.Context) error) (*store.Snapshot, error) {
	snap, err := m.canon.Snapshot(ctx, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: taking snapshot: %v", ErrBackupFailed, err)
	}
	if err := m.storage.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("%w: storing snapshot %s: %v", ErrBackupFailed, snap.ID, err)
	}

	if err := op(ctx); err != nil {
		return snap, fmt.Errorf("operation failed (snapshot %s retained): %w", snap.ID, err)
	}
	return snap, nil
}

// Take stores a snapshot outside any destructive operation.
func (m *Manager) Take(ctx context.Context, reason string) (*store.Snapshot, error) {
	return m.WithSnapshot(ctx, reason, func(context.Context) error { return nil })
}

// Restore replaces live canon with the stored snapshot wholesale.
func (m *Manager) Restore(ctx context.Context, id string) error {
	snap, err := m.storage.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("loading snapshot %s: %w", id, err)
	}
	if err := m.canon.Restore(ctx, snap); err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", id, err)
	}
	return nil
}

func (m *Manager) List(ctx context.Context) ([]Info, error) {
	return m.storage.List(ctx)
}
