// Tool dispatcher - the only path by which the agent affects the world.
//
// Information Hiding:
// - Gate ordering (terminal, disabled, schema, prerequisites) hidden
// - Failure counting and disablement threshold hidden
// - Batch concurrency and cancellation drain hidden
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

// DispatcherConfig bounds dispatch behavior.
// The zero value is safe: batch parallelism defaults to 4.
type DispatcherConfig struct {
	MaxParallel int
	Tool        Config
}

func (c *DispatcherConfig) maxParallel() int {
	if c == nil || c.MaxParallel <= 0 {
		return 4
	}
	return c.MaxParallel
}

// Dispatcher validates, gates, executes, and records tool calls.
type Dispatcher struct {
	registry *Registry
	budgeter *budget.Budgeter
	executor *Executor
	config   DispatcherConfig
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry, budgeter *budget.Budgeter, config DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		budgeter: budgeter,
		executor: NewExecutor(config.Tool),
		config:   config,
		logger:   logger,
	}
}

// BatchResult pairs one call of a batch with its outcome.
type BatchResult struct {
	Call   llm.ToolCall
	Output Output
	Err    error
}

// Dispatch runs one tool call through the full gate sequence. Tool-level
// failures are recorded on the run and returned; they never abort the run.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall, rc *run.Context) (Output, error) {
	// Terminal gate: after final synthesis nothing may run or be recorded.
	if rc.Terminal() {
		err := &TerminalStateError{ToolName: call.Name}
		d.logger.Warn("dispatch rejected in terminal state", zap.String("tool", call.Name))
		return Output{}, err
	}

	reg, exists := d.lookup(call.Name)
	if !exists {
		err := &UnknownToolError{ToolName: call.Name}
		rc.AppendDecision("dispatch_rejected", err.Error())
		return Output{}, err
	}
	meta := reg.tool.Metadata()

	// 3-strike gate: disabled tools are not invoked. The counter persists
	// for audit; the tool stays registered.
	if rc.ToolDisabled(call.Name) {
		failures := rc.ToolFailureCount(call.Name)
		err := &ToolDisabledError{ToolName: call.Name, Failures: failures}
		rc.AppendDecision("dispatch_rejected", err.Error())
		d.logger.Info("dispatch short-circuited for disabled tool",
			zap.String("tool", call.Name),
			zap.Uint32("failures", failures))
		return Output{}, err
	}

	// Schema gate: reject malformed arguments before execution, never
	// coerce. Recorded as a tool error but not counted toward disablement.
	if err := reg.schema.Validate(call.Arguments); err != nil {
		verr := &SchemaValidationError{ToolName: call.Name, Detail: err.Error()}
		rc.AppendDecision("schema_rejected", verr.Error())
		rc.AppendRecord(run.ToolExecutionRecord{
			ToolName:    call.Name,
			ConnectorID: meta.ConnectorID,
			Arguments:   recordableArgs(call.Arguments),
			TurnNumber:  rc.TurnCount,
			StartedAt:   time.Now().UTC(),
			Status:      run.RecordError,
			Err:         &run.RecordErr{Code: "schema_validation", Message: verr.Detail},
		})
		return Output{}, verr
	}

	// Prerequisite gate: each declared prerequisite must have succeeded
	// earlier in this run.
	for _, prereq := range meta.Prerequisites {
		if !d.prerequisiteMet(rc, prereq) {
			perr := &PrerequisiteError{ToolName: call.Name, Missing: prereq}
			rc.AppendDecision("dispatch_rejected", perr.Error())
			return Output{}, perr
		}
	}

	expectation := extractExpectation(call.Arguments)
	started := time.Now().UTC()
	out, execErr := d.executor.Execute(ctx, reg.tool, call.Arguments, rc)
	duration := time.Since(started)

	rec := run.ToolExecutionRecord{
		ToolName:         call.Name,
		ConnectorID:      meta.ConnectorID,
		AgentName:        "orchestrator",
		Arguments:        recordableArgs(call.Arguments),
		TurnNumber:       rc.TurnCount,
		Expected:         expectation,
		StartedAt:        started,
		Duration:         duration,
		EstimatedCostUSD: out.CostUSD,
	}

	if execErr != nil {
		rec.Status = run.RecordError
		rec.Err = &run.RecordErr{Code: "tool_execution", Message: execErr.Error()}
		rc.AppendRecord(rec)
		count := rc.RecordToolFailure(call.Name, execErr.Error())
		rc.AppendDecision("tool_failed", fmt.Sprintf("%s: %v (failure %d)", call.Name, execErr, count))
		d.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Uint32("failure_count", count),
			zap.Duration("duration", duration),
			zap.Error(execErr))
		return Output{}, &ToolExecutionError{ToolName: call.Name, Err: execErr}
	}

	rec.Status = run.RecordSuccess
	rec.Output = out.Text
	rc.AppendRecord(rec)
	rc.ResetToolFailure(call.Name)
	d.budgeter.RecordToolResult(rc, rc.TurnCount, out.Fragments, out.Images)
	d.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Duration("duration", duration),
		zap.Int("fragments", len(out.Fragments)),
		zap.Int("images", len(out.Images)))
	return out, nil
}

// DispatchBatch starts all calls of one turn concurrently and awaits the
// batch. Results arrive in completion order, matching the history log. On
// cancellation the batch stops waiting and no new dispatch begins; calls
// already started still append their records for observability.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []llm.ToolCall, rc *run.Context) ([]BatchResult, error) {
	if len(calls) == 0 {
		return []BatchResult{}, nil
	}

	results := make(chan BatchResult, len(calls))
	sem := make(chan struct{}, d.config.maxParallel())

	for _, call := range calls {
		// Stop launching once the run is cancelled.
		select {
		case <-ctx.Done():
			results <- BatchResult{Call: call, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		go func(call llm.ToolCall) {
			defer func() { <-sem }()
			out, err := d.Dispatch(ctx, call, rc)
			results <- BatchResult{Call: call, Output: out, Err: err}
		}(call)
	}

	collected := make([]BatchResult, 0, len(calls))
	for range calls {
		select {
		case res := <-results:
			collected = append(collected, res)
		case <-ctx.Done():
			// Pending completions keep writing into the buffered channel
			// and their history records are already appended by Dispatch.
			rc.AppendDecision("batch_cancelled", ctx.Err().Error())
			return collected, ctx.Err()
		}
	}
	return collected, nil
}

func (d *Dispatcher) lookup(name string) (registration, bool) {
	return d.registry.lookup(name)
}

// prerequisiteMet reports whether a named tool succeeded earlier this run.
func (d *Dispatcher) prerequisiteMet(rc *run.Context, name string) bool {
	for _, rec := range rc.HistorySince(0) {
		if rec.ToolName == name && rec.Status == run.RecordSuccess {
			return true
		}
	}
	return false
}

// recordableArgs keeps only well-formed JSON in history records so that a
// later snapshot of the run always marshals.
func recordableArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || !json.Valid(args) {
		return nil
	}
	return args
}

// extractExpectation pulls the declared expectation out of tool arguments
// when the model supplied one.
func extractExpectation(args json.RawMessage) *run.ToolExpectation {
	if len(args) == 0 {
		return nil
	}
	var wrapper struct {
		Expected *run.ToolExpectation `json:"expected_results"`
	}
	if err := json.Unmarshal(args, &wrapper); err != nil {
		return nil
	}
	return wrapper.Expected
}

// IsToolFault reports whether an error belongs to the tool-level taxonomy,
// meaning the run continues and the error text goes back to the model.
func IsToolFault(err error) bool {
	var (
		schemaErr   *SchemaValidationError
		execErr     *ToolExecutionError
		disabledErr *ToolDisabledError
		prereqErr   *PrerequisiteError
		unknownErr  *UnknownToolError
	)
	return errors.As(err, &schemaErr) ||
		errors.As(err, &execErr) ||
		errors.As(err, &disabledErr) ||
		errors.As(err, &prereqErr) ||
		errors.As(err, &unknownErr)
}
