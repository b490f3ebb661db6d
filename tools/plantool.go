// Plan tool - declares and replaces the run's sub-task plan.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/theseus/plan"
	"github.com/richinex/theseus/run"
)

// PlanToolName is the tool the model must call before any other.
const PlanToolName = "create_or_update_plan"

var planInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"goal": {
			"type": "string",
			"description": "The overall goal this plan works toward"
		},
		"sub_tasks": {
			"type": "array",
			"description": "Ordered sub-tasks. Updates replace the whole list.",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"description": {"type": "string"},
					"tools_required": {
						"type": "array",
						"items": {"type": "string"}
					}
				},
				"required": ["description"]
			}
		},
		"expected_results": {
			"type": "object",
			"properties": {
				"goal": {"type": "string"},
				"success_criteria": {"type": "array", "items": {"type": "string"}},
				"failure_signals": {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["goal", "sub_tasks"]
}`)

// PlanTool creates or replaces the run plan. Updates are whole-plan
// replacement: the submitted sub-task list becomes the plan.
type PlanTool struct{}

// NewPlanTool creates the plan tool.
func NewPlanTool() *PlanTool {
	return &PlanTool{}
}

// Metadata returns the plan tool metadata.
func (t *PlanTool) Metadata() Metadata {
	return Metadata{
		Name: PlanToolName,
		Description: "Declare the plan for answering the user's question as an ordered list of sub-tasks. " +
			"Call this before any other tool. Calling it again replaces the entire sub-task list; " +
			"specify tools_required for every sub-task.",
		InputSchema: planInputSchema,
	}
}

type planArgs struct {
	Goal     string `json:"goal"`
	SubTasks []struct {
		ID            string   `json:"id"`
		Description   string   `json:"description"`
		ToolsRequired []string `json:"tools_required"`
	} `json:"sub_tasks"`
}

// Execute installs the declared plan on the run.
func (t *PlanTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	var parsed planArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return Output{}, fmt.Errorf("parse plan arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Goal) == "" {
		return Output{}, fmt.Errorf("plan goal must not be empty")
	}
	if len(parsed.SubTasks) == 0 {
		return Output{}, fmt.Errorf("plan needs at least one sub-task")
	}

	tasks := make([]*plan.SubTask, 0, len(parsed.SubTasks))
	for _, st := range parsed.SubTasks {
		tasks = append(tasks, &plan.SubTask{
			ID:            st.ID,
			Description:   st.Description,
			ToolsRequired: st.ToolsRequired,
		})
	}

	state, err := plan.New(parsed.Goal, tasks)
	if err != nil {
		return Output{}, err
	}
	rc.SetPlan(state)

	return TextOutputf("Plan recorded with %d sub-tasks.\n%s", len(tasks), state.StatusLine()), nil
}

var _ Tool = (*PlanTool)(nil)
