package run

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/plan"
)

func midRunContext(t *testing.T) *Context {
	t.Helper()

	rc := New(
		model.User{Email: "dev@example.com", Workspace: "acme", UserID: 42},
		model.ChatRef{ChatID: "chat-9", MessageID: "msg-1"},
		"summarize the quarterly report",
		nil,
	)

	state, err := plan.New("answer the question", []*plan.SubTask{
		{ID: "t1", Description: "search for the report", ToolsRequired: []string{"search_workspace"}},
		{ID: "t2", Description: "synthesize the answer", ToolsRequired: []string{"synthesize_final_answer"}},
	})
	if err != nil {
		t.Fatalf("plan.New failed: %v", err)
	}
	rc.Plan = state
	if err := rc.Plan.MarkInProgress("t1"); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}

	rc.NextTurn()
	rc.AppendRecord(ToolExecutionRecord{
		ToolName:   "search_workspace",
		AgentName:  "orchestrator",
		Arguments:  json.RawMessage(`{"query":"quarterly report"}`),
		TurnNumber: 1,
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		Duration:   120 * time.Millisecond,
		Status:     RecordSuccess,
		Output:     "3 fragments",
	})
	rc.AppendRecord(ToolExecutionRecord{
		ToolName:   "fetch_document",
		TurnNumber: 1,
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		Status:     RecordError,
		Err:        &RecordErr{Code: "tool_execution", Message: "connector timeout"},
	})
	rc.RecordToolFailure("fetch_document", "connector timeout")
	rc.RecordToolFailure("fetch_document", "connector timeout")
	rc.AddFragments(1, []model.Fragment{
		model.NewFragment("revenue grew 4%", model.Citation{DocID: "doc-77", Title: "Q2 Report"}, 0.92),
	})
	rc.Review.ClarificationQuestions = append(rc.Review.ClarificationQuestions, "which quarter?")
	rc.AppendDecision("clarify", "ambiguous quarter reference")
	return rc
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	rc := midRunContext(t)

	data, err := rc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.RunID != rc.RunID {
		t.Errorf("expected run id %s, got %s", rc.RunID, restored.RunID)
	}
	if !reflect.DeepEqual(restored.History, rc.History) {
		t.Errorf("expected history %+v, got %+v", rc.History, restored.History)
	}
	if !reflect.DeepEqual(restored.FailedTools, rc.FailedTools) {
		t.Errorf("expected failed tools %+v, got %+v", rc.FailedTools, restored.FailedTools)
	}
	if restored.Plan == nil {
		t.Fatal("expected plan after restore, got nil")
	}
	if restored.Plan.Goal != rc.Plan.Goal {
		t.Errorf("expected goal %q, got %q", rc.Plan.Goal, restored.Plan.Goal)
	}
	if !reflect.DeepEqual(restored.Plan.Tasks, rc.Plan.Tasks) {
		t.Errorf("expected tasks %+v, got %+v", rc.Plan.Tasks, restored.Plan.Tasks)
	}
	if restored.TurnCount != rc.TurnCount {
		t.Errorf("expected turn count %d, got %d", rc.TurnCount, restored.TurnCount)
	}
}

func TestRestoredPlanIndexWorks(t *testing.T) {
	rc := midRunContext(t)

	data, err := rc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// The rebuilt plan index must accept further transitions.
	if err := restored.Plan.MarkCompleted("t1", "report located"); err != nil {
		t.Fatalf("MarkCompleted after restore failed: %v", err)
	}
	task := restored.Plan.Task("t1")
	if task == nil {
		t.Fatal("expected task t1 after restore, got nil")
	}
	if task.Status != plan.StatusCompleted {
		t.Errorf("expected status completed, got %s", task.Status)
	}
}

func TestRestoreEmptySnapshotFields(t *testing.T) {
	restored, err := Restore([]byte(`{"run_id":"r1"}`))
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.SeenDocuments == nil {
		t.Error("expected seen documents map initialized")
	}
	if restored.FailedTools == nil {
		t.Error("expected failed tools map initialized")
	}
}
