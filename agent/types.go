// Package agent provides the turn scheduler that drives one run.
//
// Contains the outcome types, the scheduler phases, and the errors a run
// can terminate with.
package agent

import (
	"fmt"
	"time"

	"github.com/richinex/theseus/llm"
)

// phase is the scheduler's position in the turn state machine.
type phase string

const (
	phasePlanning     phase = "planning"
	phaseDispatching  phase = "dispatching"
	phaseReviewing    phase = "reviewing"
	phaseSynthesizing phase = "synthesizing"
	phaseTerminated   phase = "terminated"
)

// OutcomeStatus classifies how a run ended.
type OutcomeStatus string

const (
	// OutcomeCompleted means the final answer was synthesized and streamed.
	OutcomeCompleted OutcomeStatus = "completed"

	// OutcomeFallback means the run ended with an explanation of why no
	// confident answer could be produced.
	OutcomeFallback OutcomeStatus = "fallback"

	// OutcomeClarification means the run is suspended on a question for the
	// user and can be resumed through the recorded checkpoint.
	OutcomeClarification OutcomeStatus = "clarification"

	// OutcomeCancelled means the run was stopped by its cancellation token.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the result of one scheduler run or resumption.
type Outcome struct {
	RunID    string
	ChatID   string
	Status   OutcomeStatus
	Answer   string
	Turns    uint32
	CostUSD  float64
	Tokens   llm.TokenUsage
	Duration time.Duration

	// PendingQuestions holds the clarification questions of a suspended
	// run; empty for every other status.
	PendingQuestions []string

	// CheckpointID identifies the stored checkpoint of a suspended run.
	CheckpointID string
}

// Suspended reports whether the run is waiting on a clarification answer.
func (o *Outcome) Suspended() bool {
	return o.Status == OutcomeClarification
}

// BudgetExceededError reports that the turn ceiling was reached. The run
// still terminates with a fallback report; this error surfaces only when
// that report itself could not be produced.
type BudgetExceededError struct {
	Turns uint32
	Cause error
}

func (e *BudgetExceededError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("turn budget exhausted after %d turns: %v", e.Turns, e.Cause)
	}
	return fmt.Sprintf("turn budget exhausted after %d turns", e.Turns)
}

func (e *BudgetExceededError) Unwrap() error {
	return e.Cause
}

// CancelledError reports a user-initiated stop. It wraps the context error
// so callers can match errors.Is(err, context.Canceled). Partial results
// stay on the run context and in the returned outcome.
type CancelledError struct {
	RunID string
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run %s cancelled: %v", e.RunID, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}
