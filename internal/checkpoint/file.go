package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists snapshots as JSON files under a base directory, one
// file per step. Writes go to a temporary file first and are renamed into
// place, so a concurrent reader never observes a partial snapshot.
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	final := s.path(snap.StepID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("replace checkpoint file: %w", err)
	}
	return nil
}

// Load reads the snapshot for the step, or ErrNotFound.
func (s *FileStore) Load(_ context.Context, stepID string) (Snapshot, error) {
	raw, err := os.ReadFile(s.path(stepID))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("read checkpoint file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint for %s: %w", stepID, err)
	}
	return snap, nil
}

// Delete removes the step's snapshot. Missing files are not an error.
func (s *FileStore) Delete(_ context.Context, stepID string) error {
	if err := os.Remove(s.path(stepID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint file: %w", err)
	}
	return nil
}

func (s *FileStore) path(stepID string) string {
	return filepath.Join(s.baseDir, url.PathEscape(stepID)+".json")
}
