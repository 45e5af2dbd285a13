// Package checkpoint provides CheckpointStore implementations: an in-memory
// store for tests and single-process runs, a filesystem store, a SQLite
// store, and an S3-backed store for runs that must survive host loss.
package checkpoint

import (
	"sync"

	"github.com/feedops/listingsync/treetypes"
)

// Memory is an in-process checkpoint store. Safe for concurrent use.
type Memory struct {
	mu sync.Mutex
	cp *treetypes.Checkpoint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements treetypes.CheckpointStore.
func (m *Memory) Load() (*treetypes.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cp == nil {
		return nil, nil
	}
	return copyCheckpoint(m.cp), nil
}

// Save implements treetypes.CheckpointStore.
func (m *Memory) Save(cp *treetypes.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = copyCheckpoint(cp)
	return nil
}

// Reset discards the stored checkpoint.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = nil
}

// copyCheckpoint deep-copies so callers cannot mutate stored state.
func copyCheckpoint(cp *treetypes.Checkpoint) *treetypes.Checkpoint {
	out := *cp
	out.Outcomes = make([]treetypes.UnitOutcome, len(cp.Outcomes))
	copy(out.Outcomes, cp.Outcomes)
	return &out
}
