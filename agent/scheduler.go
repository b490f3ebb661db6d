// Turn scheduler - the control loop that drives one run.
//
// Each turn the scheduler briefs the model on the run state, dispatches the
// tool calls it requests, triggers the review gate at turn boundaries, and
// terminates on final synthesis, exhaustion, clarification, or cancellation.
//
// Information Hiding:
// - Phase transitions hidden
// - Conversation reconstruction hidden
// - Checkpoint serialization hidden behind Run/Resume
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/plan"
	"github.com/richinex/theseus/review"
	"github.com/richinex/theseus/run"
	"github.com/richinex/theseus/storage"
	"github.com/richinex/theseus/stream"
	"github.com/richinex/theseus/tools"
)

// Scheduler owns the turn loop for one run at a time. Create one per
// concurrent run; the registry and provider behind it may be shared.
type Scheduler struct {
	client      *llm.Client
	registry    *tools.Registry
	dispatcher  *tools.Dispatcher
	reviewer    *review.Engine
	emitter     *stream.Emitter
	checkpoints storage.CheckpointStore
	runs        storage.RunStore
	config      Config
	logger      *zap.Logger
}

// Run drives the context through the turn loop until it terminates. The
// returned outcome is non-nil for every graceful termination, including
// fallback and cancellation; the error reports cancellation or an
// infrastructure failure, never a tool-level fault.
func (s *Scheduler) Run(ctx context.Context, rc *run.Context) (*Outcome, error) {
	if rc == nil {
		return nil, fmt.Errorf("run context is required")
	}
	if s.config.ReviewFrequency > 0 {
		rc.Review.ReviewFrequency = s.config.ReviewFrequency
	}

	// Accumulate provider usage onto this run for the duration of the loop.
	s.client.OnCall(func(stats llm.CallStats) {
		rc.AddUsage(stats.Usage, stats.CostUSD, stats.Latency)
	})
	defer s.client.OnCall(nil)

	s.logger.Info("run started",
		zap.String("run_id", rc.RunID),
		zap.String("chat_id", rc.Chat.ChatID),
		zap.Uint32("turn", rc.TurnCount),
		zap.Uint32("max_turns", s.config.maxTurns()))

	outcome, err := s.loop(ctx, rc)
	s.emitter.Finish(ctx)

	if outcome != nil {
		if !outcome.Suspended() {
			s.recordRun(rc, outcome)
		}
		s.logger.Info("run finished",
			zap.String("run_id", rc.RunID),
			zap.String("status", string(outcome.Status)),
			zap.Uint32("turns", outcome.Turns),
			zap.Float64("cost_usd", outcome.CostUSD),
			zap.Duration("duration", outcome.Duration))
	}
	return outcome, err
}

// Resume loads a suspended run, injects the clarification answer, and
// re-enters the turn loop where the run left off.
func (s *Scheduler) Resume(ctx context.Context, checkpointID, answer string) (*Outcome, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("clarification answer must not be empty")
	}

	cp, err := s.checkpoints.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoint not found: %s", checkpointID)
	}
	if cp.Status != storage.CheckpointPending {
		return nil, fmt.Errorf("checkpoint %s is %s, not pending", checkpointID, cp.Status)
	}

	rc, err := run.Restore(cp.State)
	if err != nil {
		return nil, fmt.Errorf("restore run %s: %w", cp.RunID, err)
	}
	rc.AddClarification(cp.Question, answer)
	rc.AppendDecision("run_resumed", fmt.Sprintf("clarification answered via checkpoint %s", checkpointID))

	if err := s.checkpoints.MarkResumed(ctx, checkpointID); err != nil {
		return nil, fmt.Errorf("mark checkpoint %s resumed: %w", checkpointID, err)
	}
	s.logger.Info("run resumed",
		zap.String("run_id", rc.RunID),
		zap.String("checkpoint_id", checkpointID),
		zap.Uint32("turn", rc.TurnCount))

	return s.Run(ctx, rc)
}

// loop is the turn state machine. One iteration is one turn.
func (s *Scheduler) loop(ctx context.Context, rc *run.Context) (*Outcome, error) {
	started := time.Now()
	state := phasePlanning
	if rc.Plan != nil {
		state = phaseDispatching
	}
	directive := ""

	for {
		if ctx.Err() != nil {
			return s.cancelled(ctx, rc, started)
		}
		if rc.TurnCount >= s.config.maxTurns() {
			rc.AppendDecision("turn_budget_exhausted", (&BudgetExceededError{Turns: rc.TurnCount}).Error())
			return s.fallbackTerminate(ctx, rc, started)
		}

		turn := rc.NextTurn()
		s.emit(ctx, stream.Step{Type: stream.StepIteration, Turn: turn})
		historyMark := rc.HistoryLen()
		turnsLeft := s.config.maxTurns() - turn

		conversation := buildConversation(rc, s.config, directive, turnsLeft)
		directive = ""

		defs := s.registry.Definitions(rc)
		if rc.Plan == nil {
			// Plan declaration must be the first tool call of a run.
			defs = planOnly(defs)
		}

		resp, err := s.client.ChatWithTools(ctx, conversation, defs)
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(ctx, rc, started)
			}
			rc.RetryCount++
			rc.AppendDecision("provider_failed", err.Error())
			s.emit(ctx, stream.Step{Type: stream.StepError, Turn: turn, Detail: "the model request failed"})
			s.logger.Warn("provider call failed",
				zap.String("run_id", rc.RunID),
				zap.Uint32("turn", turn),
				zap.Uint32("retry", rc.RetryCount),
				zap.Error(err))
			if rc.RetryCount > rc.MaxRetries {
				return s.fallbackTerminate(ctx, rc, started)
			}
			continue
		}

		if len(resp.ToolCalls) == 0 {
			rc.AppendDecision("no_tool_call", snippet(resp.Content))
			directive = "Your previous reply contained no tool call and was discarded. " +
				"Call a tool, or call synthesize_final_answer if the request is answered."
			continue
		}

		planCalls, synthCall, batch := partitionCalls(resp.ToolCalls)

		// Plan declarations run before anything else in the turn so the
		// batch sees the updated plan.
		for _, call := range planCalls {
			s.emit(ctx, stream.Step{Type: stream.StepPlan, Turn: turn})
			if _, err := s.dispatcher.Dispatch(ctx, call, rc); err != nil {
				s.emit(ctx, stream.Step{Type: stream.StepError, Turn: turn, Detail: "the plan update was rejected"})
			} else if state == phasePlanning {
				state = s.transition(rc, state, phaseDispatching)
			}
		}

		// The planner gates dispatch: nothing runs without a current plan,
		// and a replan order holds the batch until the plan is refreshed.
		// Only a pure synthesis request passes through.
		if state == phasePlanning && !(synthCall != nil && len(batch) == 0) {
			if rc.Plan == nil {
				rc.AppendDecision("plan_missing", "tool calls deferred until a plan is declared")
				directive = "Declare a plan with create_or_update_plan before any other tool."
			} else {
				rc.AppendDecision("replan_pending", "tool calls deferred until the plan is revised")
				directive = "The plan must be revised first. Call create_or_update_plan before any other tool."
			}
			continue
		}

		if len(batch) > 0 {
			state = s.transition(rc, state, phaseDispatching)
			for _, call := range batch {
				s.emit(ctx, stream.Step{Type: stream.StepToolCall, Turn: turn, Tool: call.Name})
			}
			results, batchErr := s.dispatcher.DispatchBatch(ctx, batch, rc)
			for _, res := range results {
				step := stream.Step{Type: stream.StepToolResult, Turn: turn, Tool: res.Call.Name}
				if res.Err != nil {
					step.Failed = true
					step.Detail = snippet(res.Err.Error())
				}
				s.emit(ctx, step)
			}
			if batchErr != nil {
				return s.cancelled(ctx, rc, started)
			}
		}

		// Review fires at the turn boundary, never once synthesis started.
		if synthCall == nil && s.reviewer != nil {
			if s.reviewer.Due(rc, rc.HistoryLen()-historyMark) {
				prev := state
				state = s.transition(rc, state, phaseReviewing)
				result, rerr := s.reviewer.Review(ctx, rc, rc.HistorySince(historyMark), reviewFocus(rc))
				if rerr != nil || result == nil {
					state = s.transition(rc, state, prev)
				} else {
					s.emit(ctx, stream.Step{Type: stream.StepReview, Turn: turn, Detail: string(result.Recommendation)})
					rc.AppendDecision("review", string(result.Recommendation))
					switch result.Recommendation {
					case run.RecommendReplan:
						state = s.transition(rc, state, phasePlanning)
						directive = "The review found the current plan no longer fits what was learned. " +
							"Call create_or_update_plan with a revised plan before any other tool."
					case run.RecommendClarify:
						return s.suspend(ctx, rc, started, turn)
					default:
						state = s.transition(rc, state, phaseDispatching)
					}
				}
			}
		}

		if synthCall != nil {
			state = s.transition(rc, state, phaseSynthesizing)
			rc.Review.LockedByFinalSynthesis = true
			s.emit(ctx, stream.Step{Type: stream.StepSynthesis, Turn: turn})
			if _, err := s.dispatcher.Dispatch(ctx, *synthCall, rc); err != nil {
				if ctx.Err() != nil {
					return s.cancelled(ctx, rc, started)
				}
				s.emit(ctx, stream.Step{Type: stream.StepError, Turn: turn, Detail: "the final answer could not be written"})
				rc.Review.LockedByFinalSynthesis = false
				directive = "The final answer could not be produced. " +
					"Gather anything still missing or call synthesize_final_answer again."
				state = s.transition(rc, state, phaseDispatching)
				continue
			}
			state = s.transition(rc, state, phaseTerminated)
			return s.completed(rc, started), nil
		}
	}
}

// suspend checkpoints the run on its clarification questions and returns
// the suspended outcome. Resume picks the run back up from the checkpoint.
func (s *Scheduler) suspend(ctx context.Context, rc *run.Context, started time.Time, turn uint32) (*Outcome, error) {
	questions := rc.Review.ClarificationQuestions
	if len(questions) == 0 {
		questions = []string{"Could you restate or narrow your request?"}
		rc.Review.ClarificationQuestions = questions
	}
	rc.AppendDecision("clarification_requested", strings.Join(questions, " | "))
	s.emit(ctx, stream.Step{Type: stream.StepClarification, Turn: turn, Detail: questions[0]})

	snap, err := rc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("checkpoint run %s: %w", rc.RunID, err)
	}
	cp := storage.Checkpoint{
		ID:       uuid.New().String(),
		RunID:    rc.RunID,
		ChatID:   rc.Chat.ChatID,
		Question: strings.Join(questions, "\n"),
		State:    snap,
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint for run %s: %w", rc.RunID, err)
	}
	s.logger.Info("run suspended for clarification",
		zap.String("run_id", rc.RunID),
		zap.String("checkpoint_id", cp.ID),
		zap.Uint32("turn", turn))

	return &Outcome{
		RunID:            rc.RunID,
		ChatID:           rc.Chat.ChatID,
		Status:           OutcomeClarification,
		Turns:            rc.TurnCount,
		CostUSD:          rc.TotalCostUSD,
		Tokens:           rc.Tokens,
		Duration:         time.Since(started),
		PendingQuestions: questions,
		CheckpointID:     cp.ID,
	}, nil
}

// fallbackTerminate ends the run through the hidden exhaustion report.
func (s *Scheduler) fallbackTerminate(ctx context.Context, rc *run.Context, started time.Time) (*Outcome, error) {
	s.emit(ctx, stream.Step{Type: stream.StepFallback, Turn: rc.TurnCount})

	call := llm.ToolCall{ID: "fallback", Name: tools.FallbackToolName, Arguments: json.RawMessage(`{}`)}
	out, err := s.dispatcher.Dispatch(ctx, call, rc)

	outcome := &Outcome{
		RunID:    rc.RunID,
		ChatID:   rc.Chat.ChatID,
		Status:   OutcomeFallback,
		Turns:    rc.TurnCount,
		CostUSD:  rc.TotalCostUSD,
		Tokens:   rc.Tokens,
		Duration: time.Since(started),
	}
	if err != nil {
		outcome.Answer = rc.FinalSynthesis.StreamedText
		return outcome, &BudgetExceededError{Turns: rc.TurnCount, Cause: err}
	}
	outcome.Answer = out.Text
	return outcome, nil
}

// cancelled ends the run on its cancellation token. Partial results stay
// on the context and in the outcome.
func (s *Scheduler) cancelled(ctx context.Context, rc *run.Context, started time.Time) (*Outcome, error) {
	cerr := &CancelledError{RunID: rc.RunID, Cause: ctx.Err()}
	rc.AppendDecision("run_cancelled", cerr.Error())
	s.emit(ctx, stream.Step{Type: stream.StepError, Turn: rc.TurnCount, Detail: "the run was stopped"})
	s.logger.Info("run cancelled",
		zap.String("run_id", rc.RunID),
		zap.Uint32("turn", rc.TurnCount))

	return &Outcome{
		RunID:    rc.RunID,
		ChatID:   rc.Chat.ChatID,
		Status:   OutcomeCancelled,
		Answer:   rc.FinalSynthesis.StreamedText,
		Turns:    rc.TurnCount,
		CostUSD:  rc.TotalCostUSD,
		Tokens:   rc.Tokens,
		Duration: time.Since(started),
	}, cerr
}

func (s *Scheduler) completed(rc *run.Context, started time.Time) *Outcome {
	rc.AppendDecision("run_completed", "final answer streamed")
	return &Outcome{
		RunID:    rc.RunID,
		ChatID:   rc.Chat.ChatID,
		Status:   OutcomeCompleted,
		Answer:   rc.FinalSynthesis.StreamedText,
		Turns:    rc.TurnCount,
		CostUSD:  rc.TotalCostUSD,
		Tokens:   rc.Tokens,
		Duration: time.Since(started),
	}
}

// recordRun persists the outcome row. A detached context is used so a
// cancelled run still records how it ended.
func (s *Scheduler) recordRun(rc *run.Context, outcome *Outcome) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := storage.RunRecord{
		RunID:     rc.RunID,
		ChatID:    rc.Chat.ChatID,
		UserEmail: rc.User.Email,
		Status:    string(outcome.Status),
		Turns:     outcome.Turns,
		CostUSD:   outcome.CostUSD,
		Duration:  outcome.Duration,
		Answer:    outcome.Answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.RecordRun(ctx, rec); err != nil {
		s.logger.Warn("record run outcome failed", zap.String("run_id", rc.RunID), zap.Error(err))
	}
}

// emit stamps and forwards one step to the stream.
func (s *Scheduler) emit(ctx context.Context, step stream.Step) {
	step.At = time.Now().UTC()
	s.emitter.Emit(ctx, step)
}

// transition logs a phase change and returns the new phase.
func (s *Scheduler) transition(rc *run.Context, from, to phase) phase {
	if from != to {
		s.logger.Debug("phase transition",
			zap.String("run_id", rc.RunID),
			zap.Uint32("turn", rc.TurnCount),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	return to
}

// partitionCalls splits a model response into plan declarations, the
// terminal synthesis request, and the concurrent tool batch. Duplicate
// synthesis requests collapse into one.
func partitionCalls(calls []llm.ToolCall) (planCalls []llm.ToolCall, synth *llm.ToolCall, batch []llm.ToolCall) {
	for _, call := range calls {
		switch call.Name {
		case tools.PlanToolName:
			planCalls = append(planCalls, call)
		case tools.SynthesizeToolName:
			if synth == nil {
				c := call
				synth = &c
			}
		default:
			batch = append(batch, call)
		}
	}
	return planCalls, synth, batch
}

// planOnly filters the offered tools down to the plan declaration.
func planOnly(defs []llm.ToolDefinition) []llm.ToolDefinition {
	for _, def := range defs {
		if def.Name == tools.PlanToolName {
			return []llm.ToolDefinition{def}
		}
	}
	return defs
}

// reviewFocus picks the active sub-task as the review focus.
func reviewFocus(rc *run.Context) string {
	if rc.Plan == nil {
		return ""
	}
	for _, t := range rc.Plan.Tasks {
		if t.Status == plan.StatusInProgress {
			return t.Description
		}
	}
	for _, t := range rc.Plan.Tasks {
		if t.Status == plan.StatusPending {
			return t.Description
		}
	}
	return ""
}
