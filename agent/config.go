// Scheduler configuration.
//
// Information Hiding:
// - Default value application hidden behind accessor methods
package agent

// Config bounds one run of the scheduler.
// The zero value is safe: every accessor applies a default.
type Config struct {
	// MaxTurns is the hard iteration ceiling. Exceeding it forces the
	// fallback report regardless of review recommendation. Defaults to 8.
	MaxTurns uint32

	// ReviewFrequency is the number of turns between automatic reviews.
	// Zero keeps the run context's own frequency.
	ReviewFrequency uint32

	// MaxParallelTools bounds how many tool calls of one batch run
	// concurrently. Defaults to 4.
	MaxParallelTools int

	// ToolTimeoutSecs is the per-dispatch tool timeout. Defaults to 30.
	ToolTimeoutSecs uint64

	// ToolMaxAttempts is the per-dispatch retry limit. Defaults to 2.
	ToolMaxAttempts uint32

	// HistoryTail is how many recent execution records each turn's
	// conversation includes. Defaults to 12.
	HistoryTail int

	// SystemPrompt overrides the built-in orchestrator instructions.
	SystemPrompt string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MaxTurns:         8,
		ReviewFrequency:  2,
		MaxParallelTools: 4,
		ToolTimeoutSecs:  30,
		ToolMaxAttempts:  2,
		HistoryTail:      12,
	}
}

func (c *Config) maxTurns() uint32 {
	if c.MaxTurns == 0 {
		return 8
	}
	return c.MaxTurns
}

func (c *Config) historyTail() int {
	if c.HistoryTail <= 0 {
		return 12
	}
	return c.HistoryTail
}

func (c *Config) systemPrompt() string {
	if c.SystemPrompt == "" {
		return orchestratorSystemPrompt
	}
	return c.SystemPrompt
}
