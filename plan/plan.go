// Package plan tracks the agent's ordered sub-tasks and their completion
// state across a run.
//
// Information Hiding:
// - Status transition rules hidden behind Mark* methods
// - Lookup structure hidden (map + insertion order slice)
// - Rendering of progress hidden behind StatusLine
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a sub-task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// rank orders statuses for the monotonic-transition check.
// blocked→pending (retry) and any→failed are the only exceptions.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusBlocked:
		return 2
	case StatusCompleted:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// SubTask is one unit of work within a plan.
type SubTask struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Status        Status   `json:"status"`
	ToolsRequired []string `json:"tools_required"`
	Result        *string  `json:"result,omitempty"`
	Err           *string  `json:"error,omitempty"`
}

// State holds the goal and the ordered sub-task list.
// Uses a map for O(1) lookup and a slice for maintaining declared order.
type State struct {
	Goal      string              `json:"goal"`
	Tasks     []*SubTask          `json:"tasks"`
	tasksByID map[string]*SubTask `json:"-"`
}

// New creates a plan from a goal and declared sub-tasks. Tasks without an id
// get a generated one; duplicate ids are rejected.
func New(goal string, tasks []*SubTask) (*State, error) {
	s := &State{
		Goal:      goal,
		Tasks:     []*SubTask{},
		tasksByID: make(map[string]*SubTask),
	}
	for _, t := range tasks {
		if err := s.add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *State) add(t *SubTask) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if _, exists := s.tasksByID[t.ID]; exists {
		return fmt.Errorf("duplicate sub-task id %q", t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.ToolsRequired == nil {
		// Start with empty slice, not nil
		t.ToolsRequired = []string{}
	}
	s.tasksByID[t.ID] = t
	s.Tasks = append(s.Tasks, t)
	return nil
}

// Replace swaps the entire sub-task list. Plan updates are whole-plan
// replacement, not incremental patches.
func (s *State) Replace(goal string, tasks []*SubTask) error {
	next, err := New(goal, tasks)
	if err != nil {
		return err
	}
	s.Goal = next.Goal
	s.Tasks = next.Tasks
	s.tasksByID = next.tasksByID
	return nil
}

// Task returns the sub-task with the given id, or nil.
func (s *State) Task(id string) *SubTask {
	if s == nil {
		return nil
	}
	return s.tasksByID[id]
}

// transition applies a status change, enforcing monotonic ordering.
func (s *State) transition(id string, to Status) error {
	t := s.Task(id)
	if t == nil {
		return fmt.Errorf("unknown sub-task id %q", id)
	}
	from := t.Status
	if from == to {
		return nil
	}
	// Any state may fail; blocked may reopen to pending.
	if to != StatusFailed && !(from == StatusBlocked && to == StatusPending) {
		if to.rank() <= from.rank() {
			return fmt.Errorf("sub-task %q: invalid transition %s -> %s", id, from, to)
		}
	}
	t.Status = to
	return nil
}

// MarkInProgress moves a pending sub-task into in_progress.
func (s *State) MarkInProgress(id string) error {
	return s.transition(id, StatusInProgress)
}

// MarkCompleted records a result and completes the sub-task.
func (s *State) MarkCompleted(id, result string) error {
	if err := s.transition(id, StatusCompleted); err != nil {
		return err
	}
	s.tasksByID[id].Result = &result
	return nil
}

// MarkBlocked parks a sub-task that cannot currently proceed.
func (s *State) MarkBlocked(id, reason string) error {
	if err := s.transition(id, StatusBlocked); err != nil {
		return err
	}
	s.tasksByID[id].Err = &reason
	return nil
}

// MarkFailed records a terminal failure for the sub-task.
func (s *State) MarkFailed(id, errMsg string) error {
	if err := s.transition(id, StatusFailed); err != nil {
		return err
	}
	s.tasksByID[id].Err = &errMsg
	return nil
}

// Reopen returns a blocked sub-task to pending for retry.
func (s *State) Reopen(id string) error {
	return s.transition(id, StatusPending)
}

// Progress returns completed and total counts.
func (s *State) Progress() (completed, total int) {
	if s == nil {
		return 0, 0
	}
	for _, t := range s.Tasks {
		if t.Status == StatusCompleted {
			completed++
		}
	}
	return completed, len(s.Tasks)
}

// Done reports whether every sub-task reached a terminal status.
func (s *State) Done() bool {
	if s == nil || len(s.Tasks) == 0 {
		return false
	}
	for _, t := range s.Tasks {
		if t.Status != StatusCompleted && t.Status != StatusFailed {
			return false
		}
	}
	return true
}

// StatusLine renders per-task progress for prompts and logs.
func (s *State) StatusLine() string {
	if s == nil {
		return "No plan declared."
	}
	completed, total := s.Progress()
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s (%d/%d)\n", s.Goal, completed, total)
	for _, t := range s.Tasks {
		var icon string
		switch t.Status {
		case StatusPending:
			icon = "[ ]"
		case StatusInProgress:
			icon = "[→]"
		case StatusCompleted:
			icon = "[✓]"
		case StatusBlocked:
			icon = "[!]"
		case StatusFailed:
			icon = "[✗]"
		}
		fmt.Fprintf(&b, "  %s %s", icon, t.Description)
		if len(t.ToolsRequired) > 0 {
			fmt.Fprintf(&b, " (tools: %s)", strings.Join(t.ToolsRequired, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// UnmarshalJSON rebuilds the lookup index after decoding.
func (s *State) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type StateAlias State
	aux := (*StateAlias)(s)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	s.tasksByID = make(map[string]*SubTask, len(s.Tasks))
	for _, t := range s.Tasks {
		s.tasksByID[t.ID] = t
	}
	return nil
}
