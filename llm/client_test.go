package llm

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// stubProvider returns canned responses for client tests.
type stubProvider struct {
	response LLMResponse
	err      error
	calls    int
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "gpt-4o" }

func (s *stubProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	return s.Chat(ctx, messages)
}

func (s *stubProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return s.Chat(ctx, messages)
}

func (s *stubProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	s.calls++
	return s.response.Usage, s.err
}

var _ Provider = (*stubProvider)(nil)

func TestClientInvokesOnCallHook(t *testing.T) {
	stub := &stubProvider{
		response: LLMResponse{
			Content: "hello",
			Usage:   &TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		},
	}
	client := NewClient(stub, zap.NewNop())

	var got CallStats
	hooked := 0
	client.OnCall(func(stats CallStats) {
		got = stats
		hooked++
	})

	resp, err := client.ChatWithTools(context.Background(), []ChatMessage{UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected content passthrough, got %q", resp.Content)
	}
	if hooked != 1 {
		t.Fatalf("expected 1 hook call, got %d", hooked)
	}
	if got.Provider != "stub" || got.Model != "gpt-4o" {
		t.Errorf("expected stub/gpt-4o stats, got %s/%s", got.Provider, got.Model)
	}
	if got.CostUSD <= 0 {
		t.Errorf("expected positive estimated cost, got %f", got.CostUSD)
	}
	if got.Usage == nil || got.Usage.TotalTokens != 150 {
		t.Errorf("expected usage forwarded, got %+v", got.Usage)
	}
}

func TestClientNilLoggerSafe(t *testing.T) {
	stub := &stubProvider{response: LLMResponse{Content: "ok"}}
	client := NewClient(stub, nil)

	if _, err := client.Chat(context.Background(), []ChatMessage{UserMessage("hi")}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", stub.calls)
	}
}
