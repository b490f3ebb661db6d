// Package tools provides the tool system for the run orchestrator.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Argument schemas compiled and enforced at the registry boundary
// - Failure tracking and disablement policy hidden in the dispatcher
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// Metadata describes what a tool does and how to call it.
type Metadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	// InputSchema is a JSON Schema document for the arguments.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	// OutputSchema documents the shape of Output.Text when structured.
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	// Prerequisites lists tool names that must have succeeded earlier in
	// the run before this tool may be dispatched.
	Prerequisites []string `json:"prerequisites,omitempty"`
	// ConnectorID identifies the external connector backing the tool.
	ConnectorID string `json:"connector_id,omitempty"`
}

// String returns a string representation of the tool metadata.
func (m Metadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Output is the result of a successful tool execution. Fragments and
// images flow into the run's content budgeter; Text goes back to the model.
type Output struct {
	Text      string                `json:"text"`
	Fragments []model.Fragment      `json:"fragments,omitempty"`
	Images    []model.ImageArtifact `json:"images,omitempty"`
	CostUSD   float64               `json:"cost_usd,omitempty"`
}

// TextOutput creates an output carrying only text.
func TextOutput(text string) Output {
	return Output{Text: text}
}

// TextOutputf creates a text output from a format string.
func TextOutputf(format string, args ...interface{}) Output {
	return Output{Text: fmt.Sprintf(format, args...)}
}

// Tool is the interface all tools implement. Execute receives the run
// context to consult run state (seen documents, plan, gathered content).
// Content recording happens in the dispatcher; tools that own a piece of
// run state (the plan tool, final synthesis) mutate it through the locked
// context methods.
type Tool interface {
	// Metadata returns the tool's name, schemas, and prerequisites.
	Metadata() Metadata

	// Execute runs the tool with validated arguments.
	Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error)
}

// Config holds tool execution configuration.
// The zero value is safe: timeout defaults to 30s and attempts to 2.
type Config struct {
	TimeoutSecs uint64
	MaxAttempts uint32
}

// Timeout returns the configured timeout in seconds, defaulting to 30.
func (c *Config) Timeout() uint64 {
	if c == nil || c.TimeoutSecs == 0 {
		return 30
	}
	return c.TimeoutSecs
}

// Attempts returns the configured attempt limit, defaulting to 2.
func (c *Config) Attempts() uint32 {
	if c == nil || c.MaxAttempts == 0 {
		return 2
	}
	return c.MaxAttempts
}

// DefaultConfig returns the default tool configuration.
// Note: the zero value of Config provides the same defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutSecs: 30,
		MaxAttempts: 2,
	}
}
