// Exhaustion fallback - terminal report when the run ends without an answer.
//
// Information Hiding:
// - Trace packaging internalized
// - Best-effort model call with deterministic degradation internalized
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

// FallbackToolName is the terminal report produced when the turn budget runs
// out without a final-synthesis request. The scheduler invokes it directly;
// it is never offered to the model.
const FallbackToolName = "report_search_failure"

// fallbackLLMTimeout bounds the best-effort explanation call. The fallback
// path must always terminate, with or without the model.
const fallbackLLMTimeout = 30 * time.Second

// FallbackTool explains why the run could not produce a confident answer.
// It packages the original query, the tool trace, and the gathered fragments
// and streams a terminal explanation instead of silently stopping.
type FallbackTool struct {
	client *llm.Client
	sink   AnswerSink
}

// NewFallbackTool creates the exhaustion fallback. A nil client skips the
// model call and uses the deterministic explanation directly.
func NewFallbackTool(client *llm.Client, sink AnswerSink) *FallbackTool {
	return &FallbackTool{client: client, sink: sink}
}

// Metadata returns the fallback tool metadata.
func (t *FallbackTool) Metadata() Metadata {
	return Metadata{
		Name:        FallbackToolName,
		Description: "Report why the run ended without a confident answer.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

// Hidden keeps the fallback out of the tool list offered to the model.
func (t *FallbackTool) Hidden() bool { return true }

// Execute produces the terminal explanation and closes the run.
func (t *FallbackTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	rc.RequestFinalSynthesis()

	deterministic := t.deterministicExplanation(rc)

	explanation := deterministic
	if t.client != nil {
		if improved, err := t.explainWithModel(ctx, rc, deterministic); err == nil && strings.TrimSpace(improved) != "" {
			explanation = improved
		}
	}

	if t.sink != nil && !rc.FinalSynthesis.SuppressAssistantStreaming {
		t.sink.AnswerDelta(explanation)
	}
	rc.CompleteFinalSynthesis(explanation)
	return TextOutput(explanation), nil
}

// deterministicExplanation builds the always-available report from the run
// state alone. No network calls.
func (t *FallbackTool) deterministicExplanation(rc *run.Context) string {
	var b strings.Builder

	b.WriteString("I was not able to produce a confident answer to your request:\n")
	fmt.Fprintf(&b, "  %q\n\n", rc.Message)

	history := rc.HistorySince(0)
	if len(history) == 0 {
		b.WriteString("No tools were executed before the run reached its turn limit.\n")
	} else {
		var succeeded, failed int
		b.WriteString("What was attempted:\n")
		for _, rec := range history {
			switch rec.Status {
			case run.RecordSuccess:
				succeeded++
				fmt.Fprintf(&b, "- turn %d: %s succeeded\n", rec.TurnNumber, rec.ToolName)
			case run.RecordError:
				failed++
				detail := ""
				if rec.Err != nil {
					detail = ": " + rec.Err.Message
				}
				fmt.Fprintf(&b, "- turn %d: %s failed%s\n", rec.TurnNumber, rec.ToolName, detail)
			}
		}
		fmt.Fprintf(&b, "\n%d tool call(s) succeeded and %d failed before the turn limit was reached.\n", succeeded, failed)
	}

	if disabled := rc.DisabledTools(); len(disabled) > 0 {
		fmt.Fprintf(&b, "These tools were disabled after repeated failures: %s.\n", strings.Join(disabled, ", "))
	}

	fragments := rc.AllFragments()
	if len(fragments) == 0 {
		b.WriteString("\nNo relevant documents were found. The request may use terms that do not appear in the workspace, or the information may not be available to me.\n")
	} else {
		fmt.Fprintf(&b, "\n%d content fragment(s) were gathered, but they were not sufficient to answer confidently.\n", len(fragments))
	}

	b.WriteString("\nYou could try rephrasing the request, narrowing it to one question, or pointing me at a specific document.")
	return b.String()
}

// explainWithModel asks the model for a better-worded explanation. Failures
// fall back to the deterministic text at the call site.
func (t *FallbackTool) explainWithModel(ctx context.Context, rc *run.Context, deterministic string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fallbackLLMTimeout)
	defer cancel()

	var trace strings.Builder
	fmt.Fprintf(&trace, "Original request: %q\n\nTool trace:\n", rc.Message)
	for _, rec := range rc.HistorySince(0) {
		fmt.Fprintf(&trace, "- turn %d, %s: %s", rec.TurnNumber, rec.ToolName, rec.Status)
		if rec.Err != nil {
			fmt.Fprintf(&trace, " (%s)", rec.Err.Message)
		}
		trace.WriteString("\n")
	}
	fragments := rc.AllFragments()
	fmt.Fprintf(&trace, "\nGathered fragments: %d\n", len(fragments))
	for i, f := range fragments {
		if i >= 5 {
			fmt.Fprintf(&trace, "... and %d more\n", len(fragments)-5)
			break
		}
		snippet := f.Content
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		fmt.Fprintf(&trace, "- [%s] %s\n", f.Source, snippet)
	}
	fmt.Fprintf(&trace, "\nDraft explanation:\n%s\n", deterministic)

	messages := []llm.ChatMessage{
		llm.SystemMessage("The research run below ran out of turns without producing an answer. " +
			"Write a short, honest explanation for the user: what was tried, why it did not " +
			"work, and what they could do differently. Do not invent an answer to the original " +
			"request. Do not mention internal tool names."),
		llm.UserMessage(trace.String()),
	}

	resp, err := t.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

var _ Tool = (*FallbackTool)(nil)
