package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

func TestMain(m *testing.M) {
	// Ignore known background goroutines from dependencies
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeTool is a scriptable tool for dispatcher tests.
type fakeTool struct {
	name          string
	schema        json.RawMessage
	prerequisites []string
	invocations   atomic.Int32
	execute       func(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error)
}

func (t *fakeTool) Metadata() Metadata {
	schema := t.schema
	if schema == nil {
		schema = json.RawMessage(`{"type": "object", "properties": {}}`)
	}
	return Metadata{
		Name:          t.name,
		Description:   "scriptable test tool",
		InputSchema:   schema,
		Prerequisites: t.prerequisites,
	}
}

func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	t.invocations.Add(1)
	if t.execute != nil {
		return t.execute(ctx, args, rc)
	}
	return TextOutput("ok"), nil
}

func newTestRun() *run.Context {
	user := model.User{Email: "dev@example.com", Workspace: "ws-test"}
	chat := model.ChatRef{ChatID: "chat-1", MessageID: "msg-1"}
	return run.New(user, chat, "what changed in the billing policy?", nil)
}

func newTestDispatcher(t *testing.T, registered ...Tool) *Dispatcher {
	t.Helper()
	registry := NewRegistry()
	for _, tool := range registered {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("Register(%s) returned error: %v", tool.Metadata().Name, err)
		}
	}
	config := DispatcherConfig{Tool: Config{TimeoutSecs: 5, MaxAttempts: 1}}
	return NewDispatcher(registry, &budget.Budgeter{}, config, nil)
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call-" + name, Name: name, Arguments: json.RawMessage(args)}
}

func TestDispatchRecordsSuccess(t *testing.T) {
	tool := &fakeTool{
		name: "echo",
		execute: func(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
			return Output{
				Text: "found it",
				Fragments: []model.Fragment{{
					ID:      "frag-1",
					Content: "the policy changed in March",
					Source:  model.Citation{Title: "Billing Policy", DocID: "doc-9"},
				}},
			}, nil
		},
	}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	out, err := d.Dispatch(context.Background(), call("echo", `{}`), rc)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if out.Text != "found it" {
		t.Errorf("output text = %q, want %q", out.Text, "found it")
	}

	history := rc.HistorySince(0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Status != run.RecordSuccess {
		t.Errorf("record status = %s, want success", history[0].Status)
	}
	if history[0].Output != "found it" {
		t.Errorf("record output = %q, want %q", history[0].Output, "found it")
	}
	if got := len(rc.AllFragments()); got != 1 {
		t.Errorf("fragments recorded = %d, want 1", got)
	}
	if !rc.HasSeenDocument("doc-9") {
		t.Error("expected doc-9 to be marked seen after dispatch")
	}
}

func TestDispatchDisablesToolAfterThreeFailures(t *testing.T) {
	tool := &fakeTool{
		name: "flaky",
		execute: func(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
			return Output{}, fmt.Errorf("connection refused")
		},
	}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	for i := 0; i < int(run.DisableThreshold); i++ {
		_, err := d.Dispatch(context.Background(), call("flaky", `{}`), rc)
		var execErr *ToolExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("dispatch %d: error = %v, want *ToolExecutionError", i+1, err)
		}
	}

	if got := tool.invocations.Load(); got != 3 {
		t.Fatalf("invocations = %d, want 3", got)
	}
	if !rc.ToolDisabled("flaky") {
		t.Fatal("expected tool disabled after three failures")
	}
	if got := rc.HistoryLen(); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}

	// Fourth dispatch is short-circuited: no invocation, no history record.
	_, err := d.Dispatch(context.Background(), call("flaky", `{}`), rc)
	var disabledErr *ToolDisabledError
	if !errors.As(err, &disabledErr) {
		t.Fatalf("error = %v, want *ToolDisabledError", err)
	}
	if disabledErr.Failures != 3 {
		t.Errorf("disabled error failures = %d, want 3", disabledErr.Failures)
	}
	if got := tool.invocations.Load(); got != 3 {
		t.Errorf("invocations after disablement = %d, want 3", got)
	}
	if got := rc.HistoryLen(); got != 3 {
		t.Errorf("history length after disablement = %d, want 3", got)
	}

	// The tool stays registered; only the offered list drops it.
	if !d.registry.Has("flaky") {
		t.Error("disabled tool should remain registered")
	}
	for _, def := range d.registry.Definitions(rc) {
		if def.Name == "flaky" {
			t.Error("disabled tool should not be offered to the model")
		}
	}
}

func TestDispatchSuccessResetsFailureCount(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	tool := &fakeTool{
		name: "recovering",
		execute: func(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
			if failures.Load() > 0 {
				failures.Add(-1)
				return Output{}, fmt.Errorf("service unavailable")
			}
			return TextOutput("recovered"), nil
		},
	}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), call("recovering", `{}`), rc); err == nil {
			t.Fatalf("dispatch %d: expected error", i+1)
		}
	}
	if got := rc.ToolFailureCount("recovering"); got != 2 {
		t.Fatalf("failure count = %d, want 2", got)
	}

	if _, err := d.Dispatch(context.Background(), call("recovering", `{}`), rc); err != nil {
		t.Fatalf("third dispatch returned error: %v", err)
	}
	if got := rc.ToolFailureCount("recovering"); got != 0 {
		t.Errorf("failure count after success = %d, want 0", got)
	}
	if rc.ToolDisabled("recovering") {
		t.Error("tool should not be disabled after recovery")
	}
}

func TestDispatchRejectsAfterFinalSynthesis(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()
	rc.RequestFinalSynthesis()
	rc.CompleteFinalSynthesis("the answer")

	_, err := d.Dispatch(context.Background(), call("echo", `{}`), rc)
	var termErr *TerminalStateError
	if !errors.As(err, &termErr) {
		t.Fatalf("error = %v, want *TerminalStateError", err)
	}
	if got := tool.invocations.Load(); got != 0 {
		t.Errorf("invocations = %d, want 0", got)
	}
	if got := rc.HistoryLen(); got != 0 {
		t.Errorf("history length = %d, want 0 (terminal rejection must not mutate history)", got)
	}
	if got := len(rc.Decisions); got != 0 {
		t.Errorf("decisions = %d, want 0", got)
	}
	if defs := d.registry.Definitions(rc); len(defs) != 0 {
		t.Errorf("definitions after synthesis = %d, want 0", len(defs))
	}
}

func TestDispatchRejectsArgumentsFailingSchema(t *testing.T) {
	tool := &fakeTool{
		name: "typed",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"required": ["message"]
		}`),
	}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	tests := []struct {
		name string
		args string
	}{
		{name: "wrong type", args: `{"message": 42}`},
		{name: "missing required", args: `{}`},
		{name: "not json", args: `{message}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), call("typed", tt.args), rc)
			var schemaErr *SchemaValidationError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("error = %v, want *SchemaValidationError", err)
			}
		})
	}

	if got := tool.invocations.Load(); got != 0 {
		t.Errorf("invocations = %d, want 0", got)
	}
	// Schema rejections are recorded for audit but never count toward
	// disablement: they are the model's fault, not the tool's.
	if got := rc.HistoryLen(); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
	for _, rec := range rc.HistorySince(0) {
		if rec.Status != run.RecordError {
			t.Errorf("record status = %s, want error", rec.Status)
		}
		if rec.Err == nil || rec.Err.Code != "schema_validation" {
			t.Errorf("record error code = %v, want schema_validation", rec.Err)
		}
	}
	if got := rc.ToolFailureCount("typed"); got != 0 {
		t.Errorf("failure count = %d, want 0", got)
	}
	if rc.ToolDisabled("typed") {
		t.Error("schema rejections must not disable the tool")
	}

	// Valid arguments still go through.
	if _, err := d.Dispatch(context.Background(), call("typed", `{"message": "hello"}`), rc); err != nil {
		t.Errorf("valid dispatch returned error: %v", err)
	}
}

func TestDispatchEnforcesPrerequisites(t *testing.T) {
	prepare := &fakeTool{name: "prepare"}
	collect := &fakeTool{name: "collect", prerequisites: []string{"prepare"}}
	d := newTestDispatcher(t, prepare, collect)
	rc := newTestRun()

	_, err := d.Dispatch(context.Background(), call("collect", `{}`), rc)
	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Fatalf("error = %v, want *PrerequisiteError", err)
	}
	if prereqErr.Missing != "prepare" {
		t.Errorf("missing prerequisite = %q, want %q", prereqErr.Missing, "prepare")
	}
	if got := collect.invocations.Load(); got != 0 {
		t.Errorf("collect invocations = %d, want 0", got)
	}

	if _, err := d.Dispatch(context.Background(), call("prepare", `{}`), rc); err != nil {
		t.Fatalf("prepare dispatch returned error: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), call("collect", `{}`), rc); err != nil {
		t.Errorf("collect dispatch after prerequisite returned error: %v", err)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t)
	rc := newTestRun()

	_, err := d.Dispatch(context.Background(), call("missing", `{}`), rc)
	var unknownErr *UnknownToolError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error = %v, want *UnknownToolError", err)
	}
}

func TestDispatchRecordsExpectation(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	args := `{"expected_results": {"goal": "find policy", "success_criteria": ["relevant doc found"]}}`
	if _, err := d.Dispatch(context.Background(), call("echo", args), rc); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	history := rc.HistorySince(0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	expected := history[0].Expected
	if expected == nil {
		t.Fatal("record expectation is nil")
	}
	if expected.Goal != "find policy" {
		t.Errorf("expectation goal = %q, want %q", expected.Goal, "find policy")
	}
	if len(expected.SuccessCriteria) != 1 {
		t.Errorf("success criteria = %d, want 1", len(expected.SuccessCriteria))
	}
}

func TestDispatchBatchCollectsAllCompletions(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	d := newTestDispatcher(t, tool)
	rc := newTestRun()

	calls := []llm.ToolCall{
		{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)},
		{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{}`)},
		{ID: "c3", Name: "echo", Arguments: json.RawMessage(`{}`)},
	}
	results, err := d.DispatchBatch(context.Background(), calls, rc)
	if err != nil {
		t.Fatalf("DispatchBatch returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("call %s returned error: %v", res.Call.ID, res.Err)
		}
	}
	if got := rc.HistoryLen(); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
}

func TestDispatchBatchStopsWaitingOnCancellation(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	blocker := &fakeTool{
		name: "slow",
		execute: func(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
			started <- struct{}{}
			<-release
			return Output{}, fmt.Errorf("connection lost")
		},
	}
	registry := NewRegistry()
	if err := registry.Register(blocker); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	config := DispatcherConfig{MaxParallel: 2, Tool: Config{TimeoutSecs: 5, MaxAttempts: 1}}
	d := NewDispatcher(registry, &budget.Budgeter{}, config, nil)
	rc := newTestRun()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		<-started
		cancel()
	}()

	calls := []llm.ToolCall{
		{ID: "c1", Name: "slow", Arguments: json.RawMessage(`{}`)},
		{ID: "c2", Name: "slow", Arguments: json.RawMessage(`{}`)},
		{ID: "c3", Name: "slow", Arguments: json.RawMessage(`{}`)},
	}
	results, err := d.DispatchBatch(ctx, calls, rc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("DispatchBatch error = %v, want context.Canceled", err)
	}
	if len(results) >= 3 {
		t.Errorf("results = %d, want fewer than 3 after cancellation", len(results))
	}

	// Already-started calls still append their records for observability.
	close(release)
	waitFor(t, func() bool { return rc.HistoryLen() == 2 && len(rc.DecisionLog()) >= 3 })

	cancelled := false
	for _, dec := range rc.DecisionLog() {
		if dec.Kind == "batch_cancelled" {
			cancelled = true
		}
	}
	if !cancelled {
		t.Error("expected a batch_cancelled decision")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestIsToolFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "schema", err: &SchemaValidationError{ToolName: "x", Detail: "bad"}, want: true},
		{name: "execution", err: &ToolExecutionError{ToolName: "x", Err: fmt.Errorf("boom")}, want: true},
		{name: "disabled", err: &ToolDisabledError{ToolName: "x", Failures: 3}, want: true},
		{name: "prerequisite", err: &PrerequisiteError{ToolName: "x", Missing: "y"}, want: true},
		{name: "unknown tool", err: &UnknownToolError{ToolName: "x"}, want: true},
		{name: "plain error", err: fmt.Errorf("boom"), want: false},
		{name: "terminal", err: &TerminalStateError{ToolName: "x"}, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsToolFault(tt.err); got != tt.want {
				t.Errorf("IsToolFault() = %v, want %v", got, tt.want)
			}
		})
	}
}
