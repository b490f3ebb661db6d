// Package stream converts internal run steps into a human-readable event
// stream with turn-level roll-ups.
//
// Every step has a deterministic summary, a pure function of the step that
// needs no network call. An optional AI summarizer can reword it; when that
// fails or times out the deterministic form is used, so the stream never
// blocks on summarization.
package stream

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// StepType classifies one internal step of a run.
type StepType string

const (
	StepPlan          StepType = "plan"
	StepToolCall      StepType = "tool_call"
	StepToolResult    StepType = "tool_result"
	StepReview        StepType = "review"
	StepIteration     StepType = "iteration"
	StepSynthesis     StepType = "synthesis"
	StepFallback      StepType = "fallback"
	StepClarification StepType = "clarification"
	StepError         StepType = "error"
	StepTurnSummary   StepType = "turn_summary"
)

// Step is one internal event of a run, before summarization.
type Step struct {
	Type   StepType  `json:"type"`
	Turn   uint32    `json:"turn"`
	Tool   string    `json:"tool,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Failed bool      `json:"failed,omitempty"`
	At     time.Time `json:"at"`
}

// Event is one emitted stream entry.
type Event struct {
	Type    StepType  `json:"type"`
	Turn    uint32    `json:"turn"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// toolRelated reports whether a step counts toward the per-turn cap.
func toolRelated(t StepType) bool {
	return t == StepToolCall || t == StepToolResult
}

// DeterministicSummary renders the always-available summary for a step.
// Pure function of the step; no network calls.
func DeterministicSummary(step Step) string {
	switch step.Type {
	case StepPlan:
		if step.Detail != "" {
			return fmt.Sprintf("Planned the approach: %s", step.Detail)
		}
		return "Planned the approach"
	case StepToolCall:
		if step.Detail != "" {
			return fmt.Sprintf("Running %s: %s", step.Tool, step.Detail)
		}
		return fmt.Sprintf("Running %s", step.Tool)
	case StepToolResult:
		if step.Failed {
			return fmt.Sprintf("%s failed: %s", step.Tool, step.Detail)
		}
		if step.Detail != "" {
			return fmt.Sprintf("%s finished: %s", step.Tool, step.Detail)
		}
		return fmt.Sprintf("%s finished", step.Tool)
	case StepReview:
		if step.Detail != "" {
			return fmt.Sprintf("Reviewed progress: %s", step.Detail)
		}
		return "Reviewed progress"
	case StepIteration:
		return fmt.Sprintf("Starting turn %d", step.Turn)
	case StepSynthesis:
		return "Writing the final answer"
	case StepFallback:
		return "Explaining why the question could not be fully answered"
	case StepClarification:
		if step.Detail != "" {
			return fmt.Sprintf("Need clarification: %s", step.Detail)
		}
		return "Waiting for clarification"
	case StepError:
		return fmt.Sprintf("Problem: %s", step.Detail)
	default:
		return step.Detail
	}
}

// consolidate renders the turn-summary text from all recorded steps of one
// turn, including steps that were capped out of the live stream.
func consolidate(turn uint32, steps []Step) string {
	var toolCalls, failures int
	tools := map[string]struct{}{}
	reviewed := false

	for _, step := range steps {
		switch step.Type {
		case StepToolCall:
			toolCalls++
			if step.Tool != "" {
				tools[step.Tool] = struct{}{}
			}
		case StepToolResult:
			if step.Failed {
				failures++
			}
		case StepReview:
			reviewed = true
		case StepError:
			failures++
		}
	}

	summary := fmt.Sprintf("Turn %d: %d tool call(s)", turn, toolCalls)
	if len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		summary += " (" + strings.Join(names, ", ") + ")"
	}
	if failures > 0 {
		summary += fmt.Sprintf(", %d failure(s)", failures)
	}
	if reviewed {
		summary += ", progress reviewed"
	}
	return summary
}
