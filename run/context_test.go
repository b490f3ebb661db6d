package run

import (
	"fmt"
	"sync"
	"testing"

	"github.com/richinex/theseus/model"
)

func newTestContext() *Context {
	return New(
		model.User{Email: "dev@example.com"},
		model.ChatRef{ChatID: "chat-1"},
		"test message",
		nil,
	)
}

func TestToolFailureCounting(t *testing.T) {
	rc := newTestContext()

	if rc.ToolDisabled("search_workspace") {
		t.Error("fresh tool should not be disabled")
	}

	rc.RecordToolFailure("search_workspace", "timeout")
	rc.RecordToolFailure("search_workspace", "timeout")
	if rc.ToolDisabled("search_workspace") {
		t.Error("tool should not be disabled below the threshold")
	}

	count := rc.RecordToolFailure("search_workspace", "timeout")
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
	if !rc.ToolDisabled("search_workspace") {
		t.Error("expected tool disabled at threshold")
	}

	disabled := rc.DisabledTools()
	if len(disabled) != 1 || disabled[0] != "search_workspace" {
		t.Errorf("expected [search_workspace], got %v", disabled)
	}
}

func TestToolFailureResetOnSuccess(t *testing.T) {
	rc := newTestContext()

	rc.RecordToolFailure("fetch_document", "boom")
	rc.RecordToolFailure("fetch_document", "boom")
	rc.ResetToolFailure("fetch_document")
	rc.RecordToolFailure("fetch_document", "boom")

	if rc.ToolDisabled("fetch_document") {
		t.Error("reset should clear progress toward disablement")
	}

	// The counter entry persists for audit even after reset.
	if _, ok := rc.FailedTools["fetch_document"]; !ok {
		t.Error("expected failure entry retained for audit")
	}
}

func TestConcurrentAppendsFromOneBatch(t *testing.T) {
	rc := newTestContext()
	rc.NextTurn()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rc.AppendRecord(ToolExecutionRecord{
				ToolName:   fmt.Sprintf("tool_%d", i),
				TurnNumber: 1,
				Status:     RecordSuccess,
			})
			rc.AddFragments(1, []model.Fragment{
				model.NewFragment(fmt.Sprintf("content %d", i), model.Citation{DocID: fmt.Sprintf("doc-%d", i)}, 0.5),
			})
		}(i)
	}
	wg.Wait()

	if got := rc.HistoryLen(); got != 16 {
		t.Errorf("expected 16 records, got %d", got)
	}
	if len(rc.Fragments) != 16 {
		t.Errorf("expected 16 fragments, got %d", len(rc.Fragments))
	}
	if len(rc.SeenDocuments) != 16 {
		t.Errorf("expected 16 seen documents, got %d", len(rc.SeenDocuments))
	}
}

func TestHistorySince(t *testing.T) {
	rc := newTestContext()

	rc.AppendRecord(ToolExecutionRecord{ToolName: "a", Status: RecordSuccess})
	mark := rc.HistoryLen()
	rc.AppendRecord(ToolExecutionRecord{ToolName: "b", Status: RecordSuccess})
	rc.AppendRecord(ToolExecutionRecord{ToolName: "c", Status: RecordError})

	since := rc.HistorySince(mark)
	if len(since) != 2 {
		t.Fatalf("expected 2 records since mark, got %d", len(since))
	}
	if since[0].ToolName != "b" || since[1].ToolName != "c" {
		t.Errorf("expected [b c], got [%s %s]", since[0].ToolName, since[1].ToolName)
	}

	if got := rc.HistorySince(-1); len(got) != 0 {
		t.Errorf("expected empty slice for bad index, got %v", got)
	}
}
