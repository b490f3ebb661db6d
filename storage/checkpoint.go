// Package storage persists run checkpoints and run outcomes.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each implementation encapsulates its own data structures and protocols

package storage

import (
	"context"
	"fmt"
	"time"
)

// CheckpointStatus tracks the lifecycle of a suspended run.
type CheckpointStatus string

const (
	// CheckpointPending awaits a clarification answer.
	CheckpointPending CheckpointStatus = "pending"
	// CheckpointResumed was loaded back into a scheduler.
	CheckpointResumed CheckpointStatus = "resumed"
	// CheckpointSuperseded belongs to a run that finished another way.
	CheckpointSuperseded CheckpointStatus = "superseded"
)

// ParseCheckpointStatus parses a status string from storage.
func ParseCheckpointStatus(s string) (CheckpointStatus, error) {
	switch CheckpointStatus(s) {
	case CheckpointPending, CheckpointResumed, CheckpointSuperseded:
		return CheckpointStatus(s), nil
	}
	return "", fmt.Errorf("unknown checkpoint status: %s", s)
}

// Checkpoint is a suspended run: the serialized run state plus the
// clarification question that caused the suspension.
type Checkpoint struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	ChatID    string           `json:"chat_id"`
	Question  string           `json:"question"`
	State     []byte           `json:"state"`
	Status    CheckpointStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// CheckpointStore persists suspended runs across process restarts.
type CheckpointStore interface {
	// SaveCheckpoint stores a checkpoint, replacing any previous one with
	// the same ID.
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error

	// LoadCheckpoint fetches a checkpoint by ID.
	// Returns nil, nil when the checkpoint doesn't exist.
	// Returns error only for storage failures, not missing checkpoints.
	LoadCheckpoint(ctx context.Context, id string) (*Checkpoint, error)

	// MarkResumed flips a checkpoint to resumed so it stops appearing in
	// pending listings.
	MarkResumed(ctx context.Context, id string) error

	// ListPending lists checkpoints still awaiting an answer, most recent
	// first.
	ListPending(ctx context.Context) ([]Checkpoint, error)
}
