package storage

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryCheckpointRoundTrip(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	cp := Checkpoint{
		ID:       "cp-1",
		RunID:    "run-1",
		ChatID:   "chat-1",
		Question: "Which workspace?",
		State:    []byte(`{"turn_count":2}`),
	}
	if err := storage.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := storage.LoadCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if loaded.Status != CheckpointPending {
		t.Errorf("status = %s, want pending by default", loaded.Status)
	}

	// Mutating the returned state must not affect the stored copy.
	loaded.State[0] = 'X'
	again, err := storage.LoadCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if string(again.State) != `{"turn_count":2}` {
		t.Errorf("stored state mutated externally: %s", again.State)
	}

	missing, err := storage.LoadCheckpoint(ctx, "nope")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing checkpoint, got %+v", missing)
	}
}

func TestInMemoryMarkResumedAndListPending(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	checkpoints := []Checkpoint{
		{ID: "cp-old", RunID: "run-1", ChatID: "chat-1", State: []byte("{}"), UpdatedAt: base},
		{ID: "cp-new", RunID: "run-2", ChatID: "chat-2", State: []byte("{}"), UpdatedAt: base.Add(time.Minute)},
	}
	for _, cp := range checkpoints {
		if err := storage.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
	}

	pending, err := storage.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "cp-new" {
		t.Errorf("pending = %+v, want cp-new first of 2", pending)
	}

	if err := storage.MarkResumed(ctx, "cp-new"); err != nil {
		t.Fatalf("MarkResumed failed: %v", err)
	}
	pending, err = storage.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "cp-old" {
		t.Errorf("pending after resume = %+v, want only cp-old", pending)
	}

	if err := storage.MarkResumed(ctx, "missing"); err == nil {
		t.Error("MarkResumed on missing checkpoint succeeded, want error")
	}
}

func TestInMemoryRecordRunSupersedesPendingCheckpoints(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	if err := storage.SaveCheckpoint(ctx, Checkpoint{ID: "cp-1", RunID: "run-1", ChatID: "chat-1", State: []byte("{}")}); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	rec := RunRecord{RunID: "run-1", ChatID: "chat-1", Status: "completed", Turns: 3}
	if err := storage.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	loaded, err := storage.LoadCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.Status != CheckpointSuperseded {
		t.Errorf("status = %s, want superseded", loaded.Status)
	}
}

func TestInMemoryListRunsOrderingAndLimit(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		rec := RunRecord{
			RunID:     id,
			ChatID:    "chat-1",
			Status:    "completed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := storage.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := storage.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-c" {
		t.Errorf("runs = %+v, want run-c first of 2", runs)
	}

	all, err := storage.ListRuns(ctx, -1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("runs with no limit = %d, want 3", len(all))
	}
}
