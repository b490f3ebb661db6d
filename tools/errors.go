// Error taxonomy for tool dispatch.
//
// Tool-level errors never abort a run: they are recorded and surfaced to
// the model as tool results. Callers branch on the concrete types below
// with errors.As.
package tools

import "fmt"

// SchemaValidationError reports arguments that failed schema validation.
// The tool is rejected before execution, never silently coerced.
type SchemaValidationError struct {
	ToolName string
	Detail   string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("tool '%s': invalid arguments: %s", e.ToolName, e.Detail)
}

// ToolExecutionError reports a tool that ran but failed.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' execution failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ToolDisabledError reports a tool excluded after repeated failures.
// Surfaced to the model as tool unavailable, not a crash.
type ToolDisabledError struct {
	ToolName string
	Failures uint32
}

func (e *ToolDisabledError) Error() string {
	return fmt.Sprintf("tool '%s' disabled after %d failures", e.ToolName, e.Failures)
}

// TerminalStateError reports a dispatch attempted after final synthesis.
type TerminalStateError struct {
	ToolName string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("tool '%s' rejected: run already synthesized its final answer", e.ToolName)
}

// PrerequisiteError reports an unmet dispatch prerequisite.
type PrerequisiteError struct {
	ToolName string
	Missing  string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("tool '%s' requires a successful '%s' call first", e.ToolName, e.Missing)
}

// UnknownToolError reports a call to a tool not in the registry.
type UnknownToolError struct {
	ToolName string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool '%s'", e.ToolName)
}
