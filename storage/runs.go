// Run outcome records for audit and cost accounting.
//
// Information Hiding:
// - Outcome row layout hidden behind the RunStore interface

package storage

import (
	"context"
	"time"
)

// RunRecord is the durable summary of one finished (or suspended) run.
type RunRecord struct {
	RunID     string        `json:"run_id"`
	ChatID    string        `json:"chat_id"`
	UserEmail string        `json:"user_email"`
	Status    string        `json:"status"`
	Turns     uint32        `json:"turns"`
	CostUSD   float64       `json:"cost_usd"`
	Duration  time.Duration `json:"duration"`
	Answer    string        `json:"answer"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunStore records run outcomes.
type RunStore interface {
	// RecordRun stores the outcome of a run. Any checkpoints still pending
	// for the same run are marked superseded in the same write.
	RecordRun(ctx context.Context, rec RunRecord) error

	// ListRuns lists recorded runs, most recent first, up to limit.
	// A non-positive limit returns all runs.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
