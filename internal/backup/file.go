package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"canonkeeper/internal/store"
)

var _ Storage = (*FileStorage)(nil)

// FileStorage keeps each snapshot as one JSON file under dir, fsynced
// before Save returns.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path, err := s.path(snap.ID)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (s *FileStorage) Load(ctx context.Context, id string) (*store.Snapshot, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (s *FileStorage) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		snap, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			ID:        snap.ID,
			Timestamp: snap.Timestamp.Format(time.RFC3339),
			Reason:    snap.Reason,
			Entities:  len(snap.Entities),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp < infos[j].Timestamp })
	return infos, nil
}

// path rejects ids that would escape the snapshot directory.
func (s *FileStorage) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) {
		return "", fmt.Errorf("snapshot %q: %w", id, store.ErrNotFound)
	}
	return filepath.Join(s.dir, id+".json"), nil
}
