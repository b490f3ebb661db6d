// Final-answer synthesis tool - the terminal step of a run.
//
// Information Hiding:
// - Synthesis prompt assembly internalized
// - Stream collection and sink forwarding internalized
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

// SynthesizeToolName ends the run by streaming the final answer.
const SynthesizeToolName = "synthesize_final_answer"

// AnswerSink receives final-answer text as the model streams it.
type AnswerSink interface {
	// AnswerDelta delivers one chunk of the final answer.
	AnswerDelta(text string)
}

const synthesisSystemPrompt = `You are writing the final answer for a research assistant run.

Use ONLY the gathered context below. Cite sources inline as "Title (doc_id)"
when a statement comes from a document. If an attached image is relevant,
refer to it by file name. If the gathered context does not answer the
question, say what is missing instead of guessing.

Write a complete, well-structured answer. Do not mention tools, turns, or
the research process itself.`

// SynthesizeTool streams the final answer and closes the run to further
// tool calls. It can only be invoked once per run.
type SynthesizeTool struct {
	client   *llm.Client
	budgeter *budget.Budgeter
	sink     AnswerSink
}

// NewSynthesizeTool creates the terminal synthesis tool. A nil sink keeps
// the answer in the run state without live streaming.
func NewSynthesizeTool(client *llm.Client, budgeter *budget.Budgeter, sink AnswerSink) *SynthesizeTool {
	if budgeter == nil {
		budgeter = &budget.Budgeter{}
	}
	return &SynthesizeTool{client: client, budgeter: budgeter, sink: sink}
}

// Metadata returns the synthesis tool metadata. The tool takes no arguments.
func (t *SynthesizeTool) Metadata() Metadata {
	return Metadata{
		Name: SynthesizeToolName,
		Description: "Produce and stream the final answer from everything gathered so far. " +
			"Call this exactly once, when the plan is complete or no further tool use can help. " +
			"No tool calls are accepted after it.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

// Execute streams the answer to the sink and marks the run terminal.
func (t *SynthesizeTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	if !rc.RequestFinalSynthesis() {
		return Output{}, fmt.Errorf("final answer synthesis was already requested")
	}

	conversation := t.buildMessages(rc)

	chunks := make(chan string, 100)
	resultCh := make(chan streamOutcome, 1)
	go func() {
		defer close(chunks)
		usage, err := t.client.StreamChat(ctx, conversation, chunks)
		resultCh <- streamOutcome{usage: usage, err: err}
	}()

	var answer strings.Builder
	for chunk := range chunks {
		answer.WriteString(chunk)
		if t.sink != nil && !rc.FinalSynthesis.SuppressAssistantStreaming {
			t.sink.AnswerDelta(chunk)
		}
	}

	result := <-resultCh
	if result.err != nil {
		// Reopen the gate so a later attempt can synthesize. Only a
		// completed synthesis closes the run.
		rc.FinalSynthesis.Requested = false
		return Output{}, fmt.Errorf("stream final answer: %w", result.err)
	}

	rc.CompleteFinalSynthesis(answer.String())
	return TextOutput("Final answer streamed to the user."), nil
}

// streamOutcome holds the result of a streaming call.
type streamOutcome struct {
	usage *llm.TokenUsage
	err   error
}

// buildMessages assembles the synthesis conversation from the run state.
func (t *SynthesizeTool) buildMessages(rc *run.Context) []llm.ChatMessage {
	var b strings.Builder

	fmt.Fprintf(&b, "User request:\n%s\n", rc.Message)

	if rc.Plan != nil && rc.Plan.Goal != "" {
		fmt.Fprintf(&b, "\nResearch goal: %s\n", rc.Plan.Goal)
	}

	fragments := rc.AllFragments()
	if len(fragments) > 0 {
		b.WriteString("\nGathered context:\n")
		for _, f := range fragments {
			if f.Source.DocID != "" {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", f.Source, f.Content)
			} else {
				fmt.Fprintf(&b, "\n%s\n", f.Content)
			}
		}
	} else {
		b.WriteString("\nNo documents were gathered. Answer from the request alone, and say so.\n")
	}

	images := t.budgeter.SelectImagesForSynthesis(rc)
	if len(images) > 0 {
		b.WriteString("\nAttached images:\n")
		for _, img := range images {
			fmt.Fprintf(&b, "- %s", img.FileName)
			if img.IsUserAttachment {
				b.WriteString(" (provided by the user)")
			}
			b.WriteString("\n")
		}
	}

	return []llm.ChatMessage{
		llm.SystemMessage(synthesisSystemPrompt),
		llm.UserMessage(b.String()),
	}
}

var _ Tool = (*SynthesizeTool)(nil)
