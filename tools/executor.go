// Tool executor with retry logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/theseus/run"
)

// Executor runs a single tool invocation with timeout and bounded retries.
// Retries here absorb transient faults inside one dispatch; the cross-turn
// failure policy lives in the dispatcher.
type Executor struct {
	config Config
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(config Config) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultConfig()}
}

// Execute runs a tool under the configured timeout, retrying transient
// failures with exponential backoff.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage, rc *run.Context) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.config.Timeout())*time.Second)
	defer cancel()

	var lastErr error
	attempts := e.config.Attempts()

	for attempt := uint32(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return Output{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := tool.Execute(ctx, args, rc)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
	}

	return Output{}, fmt.Errorf("tool '%s' failed after %d attempts: %w",
		tool.Metadata().Name, attempts, lastErr)
}

// calculateBackoff returns the backoff duration for the given attempt.
func calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// retryable determines if an error is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errLower := strings.ToLower(err.Error())

	// Don't retry validation or authorization problems.
	nonRetryable := []string{"validation", "invalid", "not allowed", "permission", "unauthorized"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	// Always retry timeouts and network faults.
	transient := []string{"timeout", "connection", "network", "unavailable"}
	for _, s := range transient {
		if strings.Contains(errLower, s) {
			return true
		}
	}

	return true
}
