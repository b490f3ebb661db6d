// Reasoning stream emitter with per-turn caps and turn roll-ups.
//
// Information Hiding:
// - Per-turn emission cap bookkeeping hidden
// - Turn roll-up generation hidden; callers just push steps
package stream

import (
	"context"

	"go.uber.org/zap"
)

// DefaultMaxToolSteps bounds the tool-related step summaries emitted per
// turn. Steps beyond the cap stay recorded for the turn roll-up but do not
// reach the sink.
const DefaultMaxToolSteps = 5

// Emitter converts run steps into summarized stream events.
// It is owned by one scheduler and is not safe for concurrent use.
type Emitter struct {
	sink         Sink
	summarizer   Summarizer
	maxToolSteps int
	logger       *zap.Logger

	currentTurn uint32
	turnSteps   []Step
	emittedTool int
}

// NewEmitter creates an emitter over a sink. A nil summarizer means only
// deterministic summaries; a nil sink records steps without emitting.
func NewEmitter(sink Sink, summarizer Summarizer, maxToolSteps int, logger *zap.Logger) *Emitter {
	if maxToolSteps <= 0 {
		maxToolSteps = DefaultMaxToolSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		sink:         sink,
		summarizer:   summarizer,
		maxToolSteps: maxToolSteps,
		logger:       logger,
		turnSteps:    []Step{},
	}
}

// Emit records one step and forwards its summary to the sink, honoring the
// per-turn cap. A step belonging to a later turn than the current one first
// emits the consolidated summary of the finished turn.
func (e *Emitter) Emit(ctx context.Context, step Step) {
	if step.Turn > e.currentTurn {
		e.rollUp(ctx)
		e.currentTurn = step.Turn
	}

	e.turnSteps = append(e.turnSteps, step)

	if toolRelated(step.Type) {
		if e.emittedTool >= e.maxToolSteps {
			// Recorded for the roll-up, not emitted.
			return
		}
		e.emittedTool++
	}

	e.send(ctx, EventStep, step, DeterministicSummary(step))
}

// Finish emits the roll-up for the last turn. Call once when the run ends.
func (e *Emitter) Finish(ctx context.Context) {
	e.rollUp(ctx)
}

// rollUp emits one consolidated summary for the turn that just ended, if it
// recorded any steps, then resets the per-turn state.
func (e *Emitter) rollUp(ctx context.Context) {
	if len(e.turnSteps) == 0 {
		e.emittedTool = 0
		return
	}
	turn := e.currentTurn
	summary := consolidate(turn, e.turnSteps)
	e.turnSteps = []Step{}
	e.emittedTool = 0

	e.send(ctx, EventTurnSummary, Step{Type: StepTurnSummary, Turn: turn}, summary)
}

// send applies best-effort AI summarization and emits.
func (e *Emitter) send(ctx context.Context, event string, step Step, summary string) {
	if e.summarizer != nil {
		if improved, err := e.summarizer.Summarize(ctx, step, summary); err == nil && improved != "" {
			summary = improved
		}
	}
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(event, Event{
		Type:    step.Type,
		Turn:    step.Turn,
		Summary: summary,
		At:      step.At,
	}); err != nil {
		e.logger.Debug("stream emit dropped", zap.String("event", event), zap.Error(err))
	}
}
