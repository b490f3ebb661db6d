package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

func exhaustedRun() *run.Context {
	rc := newTestRun()
	rc.AppendRecord(run.ToolExecutionRecord{
		ToolName:   "search_workspace",
		TurnNumber: 1,
		StartedAt:  time.Now().UTC(),
		Status:     run.RecordSuccess,
		Output:     "found 2 documents",
	})
	rc.AppendRecord(run.ToolExecutionRecord{
		ToolName:   "fetch_document",
		TurnNumber: 2,
		StartedAt:  time.Now().UTC(),
		Status:     run.RecordError,
		Err:        &run.RecordErr{Code: "tool_execution", Message: "store offline"},
	})
	return rc
}

func TestFallbackDeterministicWithoutModel(t *testing.T) {
	sink := &recordSink{}
	tool := NewFallbackTool(nil, sink)
	rc := exhaustedRun()

	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	for _, want := range []string{"not able to produce", "search_workspace", "fetch_document", "store offline"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("explanation missing %q:\n%s", want, out.Text)
		}
	}
	if !rc.FinalSynthesis.Completed {
		t.Error("fallback must close the run")
	}
	if rc.FinalSynthesis.StreamedText != out.Text {
		t.Error("explanation should be recorded as the streamed text")
	}
	if got := strings.Join(sink.deltas, ""); got != out.Text {
		t.Error("sink should receive the full explanation")
	}
}

func TestFallbackPrefersModelExplanation(t *testing.T) {
	provider := &scriptedProvider{chatText: "I could not find the billing policy in your workspace."}
	tool := NewFallbackTool(llm.NewClient(provider, nil), nil)
	rc := exhaustedRun()

	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.Text != provider.chatText {
		t.Errorf("explanation = %q, want the model's wording", out.Text)
	}
	// The model sees the original query and the trace.
	prompt := provider.lastMessages[1].Content
	for _, want := range []string{"billing policy", "search_workspace", "store offline"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("model prompt missing %q", want)
		}
	}
}

func TestFallbackDegradesWhenModelFails(t *testing.T) {
	provider := &scriptedProvider{chatErr: fmt.Errorf("provider down")}
	tool := NewFallbackTool(llm.NewClient(provider, nil), nil)
	rc := exhaustedRun()

	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(out.Text, "not able to produce") {
		t.Errorf("explanation = %q, want deterministic wording", out.Text)
	}
	if !rc.FinalSynthesis.Completed {
		t.Error("fallback must close the run even when the model fails")
	}
}

func TestFallbackRunsEvenAfterSynthesisWasRequested(t *testing.T) {
	tool := NewFallbackTool(nil, nil)
	rc := exhaustedRun()
	rc.RequestFinalSynthesis()

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !rc.FinalSynthesis.Completed {
		t.Error("fallback must complete a run whose synthesis stalled")
	}
}

func TestFallbackIsNeverOfferedToTheModel(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(NewFallbackTool(nil, nil)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := registry.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	defs := registry.Definitions(newTestRun())
	for _, def := range defs {
		if def.Name == FallbackToolName {
			t.Error("fallback tool must not appear in the offered list")
		}
	}
	if _, ok := registry.Get(FallbackToolName); !ok {
		t.Error("fallback tool should still be resolvable for the scheduler")
	}
}
