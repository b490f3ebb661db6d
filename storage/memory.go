// In-memory checkpoint and run stores.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and for runs without a database path

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStorage implements CheckpointStore and RunStore using in-memory
// maps. Data is lost when the process terminates.
type InMemoryStorage struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	runs        map[string]RunRecord
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		checkpoints: make(map[string]Checkpoint),
		runs:        make(map[string]RunRecord),
	}
}

// SaveCheckpoint stores a checkpoint, replacing any previous one with the
// same ID. Zero timestamps are filled with the current time.
func (s *InMemoryStorage) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if cp.Status == "" {
		cp.Status = CheckpointPending
	}

	// Copy the state bytes to avoid external mutations
	state := make([]byte, len(cp.State))
	copy(state, cp.State)
	cp.State = state

	s.checkpoints[cp.ID] = cp
	return nil
}

// LoadCheckpoint fetches a checkpoint by ID.
// Returns nil, nil if not found.
func (s *InMemoryStorage) LoadCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, nil
	}

	// Return a copy to avoid external mutations
	state := make([]byte, len(cp.State))
	copy(state, cp.State)
	cp.State = state
	return &cp, nil
}

// MarkResumed flips a checkpoint to resumed.
func (s *InMemoryStorage) MarkResumed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return fmt.Errorf("checkpoint not found: %s", id)
	}
	cp.Status = CheckpointResumed
	cp.UpdatedAt = time.Now()
	s.checkpoints[id] = cp
	return nil
}

// ListPending lists checkpoints awaiting an answer, most recent first.
func (s *InMemoryStorage) ListPending(ctx context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := []Checkpoint{} // Start with empty slice, not nil
	for _, cp := range s.checkpoints {
		if cp.Status == CheckpointPending {
			pending = append(pending, cp)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].UpdatedAt.After(pending[j].UpdatedAt)
	})
	return pending, nil
}

// RecordRun stores a run outcome and supersedes any checkpoints still
// pending for the same run.
func (s *InMemoryStorage) RecordRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.runs[rec.RunID] = rec

	for id, cp := range s.checkpoints {
		if cp.RunID == rec.RunID && cp.Status == CheckpointPending {
			cp.Status = CheckpointSuperseded
			cp.UpdatedAt = time.Now()
			s.checkpoints[id] = cp
		}
	}
	return nil
}

// ListRuns lists recorded runs, most recent first.
// A non-positive limit returns all runs.
func (s *InMemoryStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := []RunRecord{} // Start with empty slice, not nil
	for _, rec := range s.runs {
		runs = append(runs, rec)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Verify InMemoryStorage implements all interfaces
var _ CheckpointStore = (*InMemoryStorage)(nil)
var _ RunStore = (*InMemoryStorage)(nil)
