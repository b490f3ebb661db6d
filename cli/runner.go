// Command execution for the ask and resume commands.
//
// Information Hiding:
// - Scheduler invocation and outcome rendering hidden
// - Clarification/resume round-trip hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/theseus/agent"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// Options holds CLI execution options shared by every command.
type Options struct {
	// Provider selects the LLM provider (openai, anthropic, deepseek,
	// gemini). Empty falls back to THESEUS_PROVIDER.
	Provider string

	// MaxTurns overrides the turn budget when non-zero.
	MaxTurns uint32

	// DBPath points at the SQLite file for checkpoints and run history.
	// Empty falls back to THESEUS_DB_PATH, then to in-memory stores.
	DBPath string

	// AISummaries rewords progress notes with the model instead of the
	// deterministic templates. Costs one small LLM call per turn.
	AISummaries bool

	// Verbose prints run statistics after the answer.
	Verbose bool

	// Logger receives structured logs. Nil discards them.
	Logger *zap.Logger
}

// DefaultOptions returns the options used when no flags are set.
func DefaultOptions() Options {
	return Options{}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Ask runs one question through the scheduler, streaming reasoning steps
// and the final answer to stdout.
func Ask(ctx context.Context, question string, attachments []string, mcpConfigPath string, opts Options) error {
	images, err := loadAttachments(attachments)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, mcpConfigPath, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	rc := run.New(cliUser(), model.ChatRef{ChatID: uuid.New().String()}, question, images)

	outcome, err := s.scheduler.Run(ctx, rc)
	return report(outcome, err, s, opts)
}

// Resume answers the clarification question of a suspended run and
// continues it. The checkpoint must still be pending, which requires the
// same database the original run was started with.
func Resume(ctx context.Context, checkpointID, answer, mcpConfigPath string, opts Options) error {
	s, err := newSession(ctx, mcpConfigPath, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.durable {
		return fmt.Errorf("resume needs the database the run was started with (--db or THESEUS_DB_PATH)")
	}

	outcome, err := s.scheduler.Resume(ctx, checkpointID, answer)
	return report(outcome, err, s, opts)
}

// report renders the terminal state of a run. The answer itself has
// already been streamed, so this prints only what the stream cannot
// carry: suspension instructions, failures, and statistics.
func report(outcome *agent.Outcome, err error, s *session, opts Options) error {
	if err != nil {
		if outcome != nil && outcome.Status == agent.OutcomeCancelled {
			fmt.Println("\nRun stopped. Partial progress was recorded.")
			printStats(outcome, opts)
			return nil
		}
		var budgetErr *agent.BudgetExceededError
		if errors.As(err, &budgetErr) {
			fmt.Printf("\nThe run used all %d turns and the failure report itself failed.\n", budgetErr.Turns)
		}
		return err
	}

	switch outcome.Status {
	case agent.OutcomeClarification:
		fmt.Println("\nI need more information before I can continue:")
		for _, q := range outcome.PendingQuestions {
			fmt.Printf("  - %s\n", q)
		}
		fmt.Printf("\nResume with:\n  theseus resume %s --answer \"...\"\n", outcome.CheckpointID)
		if !s.durable {
			fmt.Println("\nNote: the checkpoint is in memory only. Re-run with --db (or THESEUS_DB_PATH) to make runs resumable.")
		}
	case agent.OutcomeCompleted, agent.OutcomeFallback:
		// The streamed answer does not end with a newline.
		fmt.Println()
	}

	printStats(outcome, opts)
	return nil
}

func printStats(outcome *agent.Outcome, opts Options) {
	if !opts.Verbose || outcome == nil {
		return
	}
	fmt.Printf("\n[%s] %d turns, %d in / %d out tokens, $%.4f, %s\n",
		outcome.Status,
		outcome.Turns,
		outcome.Tokens.PromptTokens,
		outcome.Tokens.CompletionTokens,
		outcome.CostUSD,
		outcome.Duration.Round(10*time.Millisecond))
}
