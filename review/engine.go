// Package review provides the periodic quality gate over tool execution.
//
// The engine compares each tool call's declared expectation against what the
// tool actually produced and aggregates the findings into a recommendation
// for the scheduler. It fires automatically at turn boundaries; the model
// never invokes it as a tool.
//
// Information Hiding:
// - Trigger policy internalized behind Due
// - Plan/context hashing and result caching internalized
// - Degradation on review infrastructure failure internalized
package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	jsonutil "github.com/richinex/theseus/internal/json"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

// Engine runs reviews against the language model.
type Engine struct {
	client *llm.Client
	logger *zap.Logger
}

// NewEngine creates a review engine. A nil logger disables logging.
func NewEngine(client *llm.Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, logger: logger}
}

// Due reports whether the turn-boundary trigger fires. Reviews run only
// after turns that executed at least one tool call, at the configured
// frequency, and never once final synthesis started.
func (e *Engine) Due(rc *run.Context, recordsThisTurn int) bool {
	if recordsThisTurn == 0 {
		return false
	}
	if rc.FinalSynthesis.Requested || rc.Review.LockedByFinalSynthesis {
		return false
	}
	freq := rc.Review.ReviewFrequency
	if freq == 0 {
		freq = 1
	}
	return rc.TurnCount >= rc.Review.LastReviewTurn+freq
}

// Review assesses the turn's tool calls against their declared expectations
// and updates the run's review state. A review infrastructure failure never
// blocks the run: it degrades to an ok/proceed result and is logged.
func (e *Engine) Review(ctx context.Context, rc *run.Context, turnRecords []run.ToolExecutionRecord, focus string) (*run.ReviewResult, error) {
	planSummary, planHash := summarizePlan(rc)
	contextSummary, contextHash := summarizeContext(rc)

	// Nothing changed since the last review: reuse its result instead of
	// re-summarizing identical state.
	if rc.Review.LastResult != nil &&
		planHash == rc.Review.CachedPlanHash &&
		contextHash == rc.Review.CachedContextHash {
		e.logger.Debug("review cache hit",
			zap.Uint32("turn", rc.TurnCount),
			zap.String("plan_hash", planHash))
		rc.Review.LastReviewTurn = rc.TurnCount
		return rc.Review.LastResult, nil
	}

	result := e.assess(ctx, rc, turnRecords, planSummary, contextSummary, focus)

	rc.Review.LastReviewTurn = rc.TurnCount
	rc.Review.LastResult = result
	rc.Review.CachedPlanSummary = planSummary
	rc.Review.CachedPlanHash = planHash
	rc.Review.CachedContextSummary = contextSummary
	rc.Review.CachedContextHash = contextHash
	if result.AnomaliesDetected {
		rc.Review.OutstandingAnomalies = append(rc.Review.OutstandingAnomalies, result.Anomalies...)
	}
	if result.Recommendation == run.RecommendClarify {
		rc.Review.ClarificationQuestions = result.ClarificationQuestions
	}
	if result.AmbiguityResolved {
		rc.Review.AmbiguityResolved = true
	}
	return result, nil
}

var reviewSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["ok", "needs_attention"]},
		"tool_feedback": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"tool_name": {"type": "string"},
					"outcome": {"type": "string", "enum": ["met", "missed", "error"]},
					"summary": {"type": "string"},
					"follow_up": {"type": "string"}
				},
				"required": ["tool_name", "outcome", "summary"]
			}
		},
		"unmet_expectations": {"type": "array", "items": {"type": "string"}},
		"plan_change_needed": {"type": "boolean"},
		"anomalies_detected": {"type": "boolean"},
		"anomalies": {"type": "array", "items": {"type": "string"}},
		"recommendation": {"type": "string", "enum": ["proceed", "gather_more", "clarify_query", "replan"]},
		"ambiguity_resolved": {"type": "boolean"},
		"clarification_questions": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["status", "recommendation"]
}`)

const reviewSystemPrompt = `You are reviewing the progress of a research assistant run.

For each tool call below, compare its declared expectation (goal, success
criteria, failure signals) against what the tool actually returned, and
classify the outcome as "met", "missed", or "error". Then decide what the
run should do next:
- "proceed": progress is on track.
- "gather_more": the right direction, but the evidence is thin.
- "clarify_query": the user's request is ambiguous and a human answer is
  needed before continuing. Supply clarification_questions.
- "replan": the plan no longer fits what was learned. Set plan_change_needed.

Report anomalies (contradictory results, suspicious repetition, tools
returning unrelated content) in anomalies and set anomalies_detected.

Respond with a single JSON object matching the requested schema.`

// assess performs the model call. All failures degrade to ok/proceed.
func (e *Engine) assess(ctx context.Context, rc *run.Context, turnRecords []run.ToolExecutionRecord, planSummary, contextSummary, focus string) *run.ReviewResult {
	messages := []llm.ChatMessage{
		llm.SystemMessage(reviewSystemPrompt),
		llm.UserMessage(buildReviewPrompt(rc, turnRecords, planSummary, contextSummary, focus)),
	}

	resp, err := e.client.ChatWithFormat(ctx, messages, llm.NewJSONSchemaFormat("review_result", reviewSchema))
	if err != nil {
		return e.degrade(rc, fmt.Errorf("review call failed: %w", err))
	}

	result, err := jsonutil.ExtractJSONFromResponse[run.ReviewResult](resp.Content)
	if err != nil {
		return e.degrade(rc, fmt.Errorf("review response unparseable: %w", err))
	}
	normalize(&result)
	return &result
}

// degrade records the failure and returns the non-blocking default verdict.
func (e *Engine) degrade(rc *run.Context, err error) *run.ReviewResult {
	rc.AppendDecision("review_failed", err.Error())
	e.logger.Warn("review degraded to ok", zap.Uint32("turn", rc.TurnCount), zap.Error(err))
	return &run.ReviewResult{
		Status:            run.ReviewOK,
		ToolFeedback:      []run.ToolFinding{},
		UnmetExpectations: []string{},
		Anomalies:         []string{},
		Recommendation:    run.RecommendProceed,
	}
}

// normalize fills defaults for fields the model left out.
func normalize(r *run.ReviewResult) {
	switch r.Status {
	case run.ReviewOK, run.ReviewNeedsAttention:
	default:
		r.Status = run.ReviewOK
	}
	switch r.Recommendation {
	case run.RecommendProceed, run.RecommendGatherMore, run.RecommendClarify, run.RecommendReplan:
	default:
		r.Recommendation = run.RecommendProceed
	}
	if r.ToolFeedback == nil {
		r.ToolFeedback = []run.ToolFinding{}
	}
	if r.UnmetExpectations == nil {
		r.UnmetExpectations = []string{}
	}
	if r.Anomalies == nil {
		r.Anomalies = []string{}
	}
}

// buildReviewPrompt assembles the review input from the run state.
func buildReviewPrompt(rc *run.Context, turnRecords []run.ToolExecutionRecord, planSummary, contextSummary, focus string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User request: %q\n", rc.Message)
	fmt.Fprintf(&b, "Turn %d of the run.\n", rc.TurnCount)
	if focus != "" {
		fmt.Fprintf(&b, "Review focus: %s\n", focus)
	}

	b.WriteString("\nPlan:\n")
	if planSummary == "" {
		b.WriteString("(no plan declared)\n")
	} else {
		b.WriteString(planSummary)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nGathered so far: %s\n", contextSummary)

	if disabled := rc.DisabledTools(); len(disabled) > 0 {
		fmt.Fprintf(&b, "Disabled tools: %s\n", strings.Join(disabled, ", "))
	}
	if len(rc.Review.OutstandingAnomalies) > 0 {
		fmt.Fprintf(&b, "Previously reported anomalies: %s\n", strings.Join(rc.Review.OutstandingAnomalies, "; "))
	}

	b.WriteString("\nTool calls this turn:\n")
	if len(turnRecords) == 0 {
		b.WriteString("(none)\n")
	}
	for i, rec := range turnRecords {
		fmt.Fprintf(&b, "\n%d. %s (%s", i+1, rec.ToolName, rec.Status)
		if rec.Err != nil {
			fmt.Fprintf(&b, ": %s", rec.Err.Message)
		}
		b.WriteString(")\n")
		if rec.Expected != nil {
			fmt.Fprintf(&b, "   expectation: %s\n", rec.Expected.Goal)
			if len(rec.Expected.SuccessCriteria) > 0 {
				fmt.Fprintf(&b, "   success criteria: %s\n", strings.Join(rec.Expected.SuccessCriteria, "; "))
			}
			if len(rec.Expected.FailureSignals) > 0 {
				fmt.Fprintf(&b, "   failure signals: %s\n", strings.Join(rec.Expected.FailureSignals, "; "))
			}
		} else {
			b.WriteString("   expectation: (none declared)\n")
		}
		if rec.Output != "" {
			fmt.Fprintf(&b, "   output: %s\n", truncate(rec.Output, 600))
		}
	}

	return b.String()
}

// summarizePlan renders the plan and hashes its content.
func summarizePlan(rc *run.Context) (summary, hash string) {
	if rc.Plan == nil {
		return "", ""
	}
	summary = fmt.Sprintf("Goal: %s\n%s", rc.Plan.Goal, rc.Plan.StatusLine())
	raw, err := json.Marshal(rc.Plan)
	if err != nil {
		raw = []byte(summary)
	}
	return summary, digest(raw)
}

// summarizeContext describes the gathered content and hashes the history so
// a review can be skipped when nothing changed.
func summarizeContext(rc *run.Context) (summary, hash string) {
	history := rc.HistorySince(0)
	fragments := rc.AllFragments()

	var succeeded, failed int
	h := sha256.New()
	for _, rec := range history {
		if rec.Status == run.RecordSuccess {
			succeeded++
		} else {
			failed++
		}
		fmt.Fprintf(h, "%s|%s|%s\n", rec.ToolName, rec.Status, rec.StartedAt.Format("15:04:05.000000"))
	}
	fmt.Fprintf(h, "fragments:%d\n", len(fragments))

	summary = fmt.Sprintf("%d tool calls (%d succeeded, %d failed), %d content fragments from %d documents",
		len(history), succeeded, failed, len(fragments), len(rc.SeenDocumentIDs()))
	return summary, hex.EncodeToString(h.Sum(nil))
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
