package checkpoint

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/feedops/listingsync/treetypes"
)

// FileStore persists checkpoints as a JSON file on a filesystem
// abstraction, so tests run against an in-memory filesystem and production
// uses the OS.
type FileStore struct {
	fs   fs.Filesystem
	path string
}

// NewFileStore creates a store writing to path on the given filesystem.
func NewFileStore(fsys fs.Filesystem, path string) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

// Load implements treetypes.CheckpointStore. A missing file means no
// checkpoint exists yet.
func (s *FileStore) Load() (*treetypes.Checkpoint, error) {
	exists, err := s.fs.Exists(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat checkpoint %q: %w", s.path, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %q: %w", s.path, err)
	}
	var cp treetypes.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", s.path, err)
	}
	return &cp, nil
}

// Save implements treetypes.CheckpointStore.
func (s *FileStore) Save(cp *treetypes.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "/" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint directory %q: %w", dir, err)
		}
	}
	if err := s.fs.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %q: %w", s.path, err)
	}
	return nil
}
