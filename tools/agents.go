// Custom-agent tools: discovery and delegation to named public agents.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// AgentsListToolName lists custom agents available to the caller.
const AgentsListToolName = "list_custom_agents"

// AgentRunToolName delegates a task to one named public agent.
const AgentRunToolName = "run_public_agent"

// AgentCandidate describes one runnable public agent.
type AgentCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
}

// AgentAnswer is the result of delegating to a public agent. Fragments
// carry any source documents the agent consulted, so they enter the run's
// gathered content like retrieval results do.
type AgentAnswer struct {
	Text      string           `json:"text"`
	Fragments []model.Fragment `json:"fragments,omitempty"`
	CostUSD   float64          `json:"cost_usd,omitempty"`
}

// AgentRuntime hosts public agents that the run can delegate to.
type AgentRuntime interface {
	// ListCandidates returns the agents visible to the given workspace.
	ListCandidates(ctx context.Context, workspace string) ([]AgentCandidate, error)
	// Run executes one named agent against a prompt and waits for its answer.
	Run(ctx context.Context, name, prompt string) (*AgentAnswer, error)
}

// ListAgentsTool enumerates runnable public agents.
type ListAgentsTool struct {
	runtime AgentRuntime
}

// NewListAgentsTool creates the agent discovery tool.
func NewListAgentsTool(runtime AgentRuntime) *ListAgentsTool {
	return &ListAgentsTool{runtime: runtime}
}

// Metadata returns the discovery tool metadata.
func (t *ListAgentsTool) Metadata() Metadata {
	return Metadata{
		Name: AgentsListToolName,
		Description: "List the public agents available in this workspace. Call this before " +
			"delegating work with " + AgentRunToolName + ".",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

// Execute lists the candidates for the run's workspace.
func (t *ListAgentsTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	workspace := ""
	if rc != nil {
		workspace = rc.User.Workspace
	}
	candidates, err := t.runtime.ListCandidates(ctx, workspace)
	if err != nil {
		return Output{}, fmt.Errorf("list agents: %w", err)
	}
	if len(candidates) == 0 {
		return TextOutput("No public agents are available in this workspace."), nil
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Available public agents (%d):\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&text, "- %s: %s\n", c.Name, c.Description)
	}
	return TextOutput(text.String()), nil
}

var agentRunInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"agent_name": {
			"type": "string",
			"description": "Name of the public agent, exactly as listed"
		},
		"prompt": {
			"type": "string",
			"description": "Task to delegate to the agent"
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
	"required": ["agent_name", "prompt"]
}`)

// RunAgentTool delegates a task to a named public agent. Discovery must have
// happened first so the model picks from real names.
type RunAgentTool struct {
	runtime AgentRuntime
}

// NewRunAgentTool creates the delegation tool.
func NewRunAgentTool(runtime AgentRuntime) *RunAgentTool {
	return &RunAgentTool{runtime: runtime}
}

// Metadata returns the delegation tool metadata, including the discovery
// prerequisite.
func (t *RunAgentTool) Metadata() Metadata {
	return Metadata{
		Name: AgentRunToolName,
		Description: "Delegate a self-contained task to one named public agent and wait " +
			"for its answer.",
		InputSchema:   agentRunInputSchema,
		Prerequisites: []string{AgentsListToolName},
	}
}

type runAgentArgs struct {
	AgentName string `json:"agent_name"`
	Prompt    string `json:"prompt"`
}

// Execute runs the named agent with the given prompt.
func (t *RunAgentTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	var parsed runAgentArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return Output{}, fmt.Errorf("parse agent arguments: %w", err)
	}
	name := strings.TrimSpace(parsed.AgentName)
	if name == "" {
		return Output{}, fmt.Errorf("agent_name must not be empty")
	}
	if strings.TrimSpace(parsed.Prompt) == "" {
		return Output{}, fmt.Errorf("prompt must not be empty")
	}

	answer, err := t.runtime.Run(ctx, name, parsed.Prompt)
	if err != nil {
		return Output{}, fmt.Errorf("run agent %s: %w", name, err)
	}
	if answer == nil || strings.TrimSpace(answer.Text) == "" {
		return TextOutputf("Agent %s returned no answer.", name), nil
	}
	return Output{
		Text:      fmt.Sprintf("Answer from agent %s:\n%s", name, answer.Text),
		Fragments: answer.Fragments,
		CostUSD:   answer.CostUSD,
	}, nil
}

var (
	_ Tool = (*ListAgentsTool)(nil)
	_ Tool = (*RunAgentTool)(nil)
)
