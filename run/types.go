// Package run provides the per-run state container owned by the scheduler.
//
// Contains all types recorded on a run: execution records, failure counters,
// review state, the final-synthesis gate, and the audit log.
package run

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the outcome of one tool execution.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordError   RecordStatus = "error"
)

// RecordErr carries the error detail of a failed execution record.
type RecordErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolExpectation declares what a tool call was expected to achieve.
// Compared against actual output by the review engine.
type ToolExpectation struct {
	Goal            string   `json:"goal"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
	FailureSignals  []string `json:"failure_signals,omitempty"`
}

// ToolExecutionRecord is one entry in the tool call history.
// Immutable once appended.
type ToolExecutionRecord struct {
	ToolName         string           `json:"tool_name"`
	ConnectorID      string           `json:"connector_id,omitempty"`
	AgentName        string           `json:"agent_name,omitempty"`
	Arguments        json.RawMessage  `json:"arguments,omitempty"`
	TurnNumber       uint32           `json:"turn_number"`
	Expected         *ToolExpectation `json:"expected_results,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	Duration         time.Duration    `json:"duration_ns"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
	Status           RecordStatus     `json:"status"`
	Err              *RecordErr       `json:"error,omitempty"`
	Output           string           `json:"output,omitempty"`
}

// ToolFailureInfo tracks consecutive failures for one tool name.
type ToolFailureInfo struct {
	Count       uint32    `json:"count"`
	LastError   string    `json:"last_error"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Clarification records a human answer to a question the run suspended on.
type Clarification struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Decision is one entry in the append-only audit log.
type Decision struct {
	ID     string    `json:"id"`
	Turn   uint32    `json:"turn"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// NewDecision creates an audit entry with a generated id.
func NewDecision(turn uint32, kind, detail string) Decision {
	return Decision{
		ID:     uuid.New().String(),
		Turn:   turn,
		Kind:   kind,
		Detail: detail,
		At:     time.Now().UTC(),
	}
}

// ReviewStatus is the overall verdict of one review.
type ReviewStatus string

const (
	ReviewOK             ReviewStatus = "ok"
	ReviewNeedsAttention ReviewStatus = "needs_attention"
)

// FindingOutcome classifies one tool call against its expectation.
type FindingOutcome string

const (
	OutcomeMet    FindingOutcome = "met"
	OutcomeMissed FindingOutcome = "missed"
	OutcomeError  FindingOutcome = "error"
)

// Recommendation tells the scheduler what to do next.
type Recommendation string

const (
	RecommendProceed    Recommendation = "proceed"
	RecommendGatherMore Recommendation = "gather_more"
	RecommendClarify    Recommendation = "clarify_query"
	RecommendReplan     Recommendation = "replan"
)

// ToolFinding is the per-tool portion of a review result.
type ToolFinding struct {
	ToolName string         `json:"tool_name"`
	Outcome  FindingOutcome `json:"outcome"`
	Summary  string         `json:"summary"`
	FollowUp string         `json:"follow_up,omitempty"`
}

// ReviewResult is the output of one review invocation.
type ReviewResult struct {
	Status                 ReviewStatus   `json:"status"`
	ToolFeedback           []ToolFinding  `json:"tool_feedback"`
	UnmetExpectations      []string       `json:"unmet_expectations"`
	PlanChangeNeeded       bool           `json:"plan_change_needed"`
	AnomaliesDetected      bool           `json:"anomalies_detected"`
	Anomalies              []string       `json:"anomalies"`
	Recommendation         Recommendation `json:"recommendation"`
	AmbiguityResolved      bool           `json:"ambiguity_resolved"`
	ClarificationQuestions []string       `json:"clarification_questions,omitempty"`
}

// ReviewState tracks review bookkeeping across the run.
type ReviewState struct {
	LastReviewTurn         uint32        `json:"last_review_turn"`
	ReviewFrequency        uint32        `json:"review_frequency"`
	OutstandingAnomalies   []string      `json:"outstanding_anomalies"`
	ClarificationQuestions []string      `json:"clarification_questions"`
	LastResult             *ReviewResult `json:"last_result,omitempty"`
	LockedByFinalSynthesis bool          `json:"locked_by_final_synthesis"`
	CachedPlanSummary      string        `json:"cached_plan_summary,omitempty"`
	CachedPlanHash         string        `json:"cached_plan_hash,omitempty"`
	CachedContextSummary   string        `json:"cached_context_summary,omitempty"`
	CachedContextHash      string        `json:"cached_context_hash,omitempty"`
	AmbiguityResolved      bool          `json:"ambiguity_resolved"`
}

// FinalSynthesisState is the terminal gate. Once Completed is set no
// further tool calls are permitted.
type FinalSynthesisState struct {
	Requested                  bool   `json:"requested"`
	Completed                  bool   `json:"completed"`
	SuppressAssistantStreaming bool   `json:"suppress_assistant_streaming"`
	StreamedText               string `json:"streamed_text,omitempty"`
	AckReceived                bool   `json:"ack_received"`
}
