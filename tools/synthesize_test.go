package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// scriptedProvider is a canned llm.Provider for tool tests.
type scriptedProvider struct {
	chunks       []string
	chatText     string
	chatErr      error
	streamErr    error
	lastMessages []llm.ChatMessage
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	p.lastMessages = messages
	if p.chatErr != nil {
		return llm.LLMResponse{}, p.chatErr
	}
	return llm.LLMResponse{Content: p.chatText}, nil
}

func (p *scriptedProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.LLMResponse, error) {
	return p.Chat(ctx, messages)
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.Chat(ctx, messages)
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	p.lastMessages = messages
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	for _, c := range p.chunks {
		chunks <- c
	}
	return &llm.TokenUsage{TotalTokens: 7}, nil
}

// recordSink captures streamed answer deltas.
type recordSink struct {
	deltas []string
}

func (s *recordSink) AnswerDelta(text string) {
	s.deltas = append(s.deltas, text)
}

func TestSynthesizeStreamsAnswerAndClosesRun(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"The policy ", "changed in March."}}
	sink := &recordSink{}
	tool := NewSynthesizeTool(llm.NewClient(provider, nil), &budget.Budgeter{}, sink)
	rc := newTestRun()
	rc.AddFragments(1, []model.Fragment{{
		ID:      "f1",
		Content: "the policy changed in March",
		Source:  model.Citation{Title: "Billing Policy", DocID: "doc-9"},
	}})

	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.Text == "" {
		t.Error("expected confirmation text")
	}

	if !rc.FinalSynthesis.Requested || !rc.FinalSynthesis.Completed {
		t.Errorf("synthesis state = %+v, want requested and completed", rc.FinalSynthesis)
	}
	if rc.FinalSynthesis.StreamedText != "The policy changed in March." {
		t.Errorf("streamed text = %q", rc.FinalSynthesis.StreamedText)
	}
	if got := strings.Join(sink.deltas, ""); got != "The policy changed in March." {
		t.Errorf("sink received %q", got)
	}
	if !rc.Terminal() {
		t.Error("run should be terminal after synthesis")
	}

	// The prompt carries the gathered context and its citation.
	if len(provider.lastMessages) != 2 {
		t.Fatalf("messages = %d, want 2", len(provider.lastMessages))
	}
	prompt := provider.lastMessages[1].Content
	if !strings.Contains(prompt, "the policy changed in March") {
		t.Errorf("prompt missing gathered fragment: %q", prompt)
	}
	if !strings.Contains(prompt, "Billing Policy (doc-9)") {
		t.Errorf("prompt missing citation: %q", prompt)
	}
}

func TestSynthesizeOnlyInvokableOnce(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"answer"}}
	tool := NewSynthesizeTool(llm.NewClient(provider, nil), &budget.Budgeter{}, nil)
	rc := newTestRun()

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err == nil {
		t.Error("second Execute should fail")
	}
}

func TestSynthesizeSuppressedStreaming(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"quiet answer"}}
	sink := &recordSink{}
	tool := NewSynthesizeTool(llm.NewClient(provider, nil), &budget.Budgeter{}, sink)
	rc := newTestRun()
	rc.FinalSynthesis.SuppressAssistantStreaming = true

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(sink.deltas) != 0 {
		t.Errorf("sink received %d deltas, want 0 while suppressed", len(sink.deltas))
	}
	if rc.FinalSynthesis.StreamedText != "quiet answer" {
		t.Errorf("streamed text = %q, want it recorded despite suppression", rc.FinalSynthesis.StreamedText)
	}
}

func TestSynthesizeStreamFailureLeavesRunOpen(t *testing.T) {
	provider := &scriptedProvider{streamErr: context.DeadlineExceeded}
	tool := NewSynthesizeTool(llm.NewClient(provider, nil), &budget.Budgeter{}, nil)
	rc := newTestRun()

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err == nil {
		t.Fatal("expected stream error")
	}
	if rc.FinalSynthesis.Completed {
		t.Error("failed synthesis must not mark the run completed")
	}
	if rc.Terminal() {
		t.Error("run must stay open for the fallback path")
	}
}

func TestSynthesizePromptListsSelectedImages(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"ok"}}
	tool := NewSynthesizeTool(llm.NewClient(provider, nil), &budget.Budgeter{MaxImages: 2}, nil)

	user := model.User{Email: "dev@example.com", Workspace: "ws-test"}
	chat := model.ChatRef{ChatID: "chat-1"}
	attachments := []model.ImageArtifact{{FileName: "user-diagram.png"}}
	rc := run.New(user, chat, "what does the diagram show?", attachments)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), rc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	prompt := provider.lastMessages[1].Content
	if !strings.Contains(prompt, "user-diagram.png") {
		t.Errorf("prompt missing user attachment: %q", prompt)
	}
	if !strings.Contains(prompt, "provided by the user") {
		t.Errorf("prompt missing attachment marker: %q", prompt)
	}
}
