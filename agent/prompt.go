// Per-turn conversation assembly.
//
// The provider conversation is rebuilt from the run context at every turn
// instead of being carried forward, so a restored checkpoint and a live run
// see exactly the same briefing.
//
// Information Hiding:
// - Briefing layout and section ordering hidden
// - Snippet truncation rules hidden
package agent

import (
	"fmt"
	"strings"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

const orchestratorSystemPrompt = `You are a research orchestrator. You answer one user request by planning,
gathering evidence with tools, and then synthesizing a final answer.

Rules:
- Declare a plan with create_or_update_plan before any other tool. Calling
  it again replaces the whole plan.
- Gather evidence with the available tools. Independent calls may be
  requested together; they run concurrently.
- Never re-fetch a document that already appears in the gathered context.
- When the gathered context answers the request, call
  synthesize_final_answer exactly once. No tool call is accepted after it.
- Respond only with tool calls. Plain text replies are discarded.`

// snippetLen bounds how much of a tool output the briefing repeats.
const snippetLen = 160

// maxListedSources bounds the source listing in the context digest.
const maxListedSources = 6

// buildConversation assembles the two-message conversation for one turn.
// directive carries a scheduler instruction for this turn, such as a replan
// order; turnsLeft is how many turns remain after the current one.
func buildConversation(rc *run.Context, cfg Config, directive string, turnsLeft uint32) []llm.ChatMessage {
	var b strings.Builder

	fmt.Fprintf(&b, "User request:\n%s\n", rc.Message)

	if clarifications := rc.ClarificationLog(); len(clarifications) > 0 {
		b.WriteString("\nClarifications received from the user:\n")
		for _, c := range clarifications {
			fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", strings.TrimSpace(c.Question), strings.TrimSpace(c.Answer))
		}
	}

	b.WriteString("\n")
	b.WriteString(rc.Plan.StatusLine())
	b.WriteString("\n")

	writeContextDigest(&b, rc)
	writeHistoryTail(&b, rc, cfg.historyTail())

	if disabled := rc.DisabledTools(); len(disabled) > 0 {
		fmt.Fprintf(&b, "\nUnavailable after repeated failures: %s.\n", strings.Join(disabled, ", "))
	}

	if turnsLeft == 0 {
		b.WriteString("\nWARNING: this is the final turn. Call synthesize_final_answer now with whatever has been gathered.\n")
	} else if turnsLeft == 1 {
		b.WriteString("\nWARNING: only 1 turn remains after this one. Finish gathering and synthesize.\n")
	}

	if directive != "" {
		fmt.Fprintf(&b, "\n%s\n", directive)
	}

	b.WriteString("\nDecide the next action and respond with tool calls.")

	return []llm.ChatMessage{
		llm.SystemMessage(cfg.systemPrompt()),
		llm.UserMessage(b.String()),
	}
}

// writeContextDigest summarizes gathered fragments and images without
// repeating their content. The synthesis tool sees the full text later.
func writeContextDigest(b *strings.Builder, rc *run.Context) {
	fragments := rc.AllFragments()
	if len(fragments) == 0 {
		b.WriteString("\nNo context gathered yet.\n")
		return
	}

	seen := map[string]struct{}{}
	sources := []string{}
	for _, f := range fragments {
		name := f.Source.Title
		if name == "" {
			name = f.Source.DocID
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}

	fmt.Fprintf(b, "\nContext gathered: %d fragment(s) from %d source(s)", len(fragments), len(sources))
	if len(sources) > 0 {
		listed := sources
		extra := 0
		if len(listed) > maxListedSources {
			extra = len(listed) - maxListedSources
			listed = listed[:maxListedSources]
		}
		fmt.Fprintf(b, ": %s", strings.Join(listed, "; "))
		if extra > 0 {
			fmt.Fprintf(b, " and %d more", extra)
		}
	}
	if images := rc.RecentImagesCopy(); len(images) > 0 {
		fmt.Fprintf(b, "; %d image(s) on hand", len(images))
	}
	b.WriteString(".\n")
}

// writeHistoryTail lists the most recent execution records so the model
// sees what already ran and how it went.
func writeHistoryTail(b *strings.Builder, rc *run.Context, tail int) {
	history := rc.HistorySince(0)
	if len(history) == 0 {
		return
	}
	if len(history) > tail {
		history = history[len(history)-tail:]
	}

	b.WriteString("\nRecent tool activity:\n")
	for _, rec := range history {
		switch rec.Status {
		case run.RecordError:
			detail := ""
			if rec.Err != nil {
				detail = ": " + snippet(rec.Err.Message)
			}
			fmt.Fprintf(b, "- turn %d: %s failed%s\n", rec.TurnNumber, rec.ToolName, detail)
		default:
			detail := ""
			if rec.Output != "" {
				detail = ": " + snippet(rec.Output)
			}
			fmt.Fprintf(b, "- turn %d: %s succeeded%s\n", rec.TurnNumber, rec.ToolName, detail)
		}
	}
}

// snippet flattens and truncates text for one briefing line.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > snippetLen {
		return s[:snippetLen] + "..."
	}
	return s
}
