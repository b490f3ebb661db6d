// Client - provider wrapper with logging and cost accounting.
//
// Information Hiding:
// - Latency measurement and cost estimation internalized
// - Logging fields standardized here, not at call sites
package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CallStats describes one provider call for accounting.
type CallStats struct {
	Provider string
	Model    string
	Latency  time.Duration
	Usage    *TokenUsage
	CostUSD  float64
}

// Client wraps a Provider with structured logging and per-call accounting.
type Client struct {
	provider Provider
	logger   *zap.Logger
	onCall   func(CallStats)
}

// NewClient creates a client around a provider. A nil logger disables logging.
func NewClient(provider Provider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{provider: provider, logger: logger}
}

// OnCall registers a hook invoked after every provider call, successful or
// not, with the measured stats. Used to accumulate usage onto a run.
func (c *Client) OnCall(hook func(CallStats)) {
	c.onCall = hook
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) record(start time.Time, usage *TokenUsage, err error) CallStats {
	stats := CallStats{
		Provider: c.provider.Name(),
		Model:    c.provider.Model(),
		Latency:  time.Since(start),
		Usage:    usage,
		CostUSD:  EstimateCostUSD(c.provider.Model(), usage),
	}
	fields := []zap.Field{
		zap.String("provider", stats.Provider),
		zap.String("model", stats.Model),
		zap.Duration("latency", stats.Latency),
		zap.Float64("cost_usd", stats.CostUSD),
	}
	if usage != nil {
		fields = append(fields, zap.Uint32("total_tokens", usage.TotalTokens))
	}
	if err != nil {
		c.logger.Warn("provider call failed", append(fields, zap.Error(err))...)
	} else {
		c.logger.Debug("provider call completed", fields...)
	}
	if c.onCall != nil {
		c.onCall(stats)
	}
	return stats
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	start := time.Now()
	resp, err := c.provider.Chat(ctx, messages)
	c.record(start, resp.Usage, err)
	return resp, err
}

// ChatWithFormat sends a chat completion request with a response format.
func (c *Client) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	start := time.Now()
	resp, err := c.provider.ChatWithFormat(ctx, messages, format)
	c.record(start, resp.Usage, err)
	return resp, err
}

// ChatWithTools sends a chat completion request offering tool definitions.
// The model may respond with tool calls in LLMResponse.ToolCalls.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	start := time.Now()
	resp, err := c.provider.ChatWithTools(ctx, messages, tools)
	c.record(start, resp.Usage, err)
	return resp, err
}

// StreamChat streams a chat completion, sending chunks to the channel.
func (c *Client) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	start := time.Now()
	usage, err := c.provider.StreamChat(ctx, messages, chunks)
	c.record(start, usage, err)
	return usage, err
}
