// Package main provides the theseus CLI entry point.
//
// Information Hiding:
// - Flag definitions and cobra wiring contained here
// - Command execution delegated to the cli package

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/richinex/theseus/cli"
)

var (
	// Global flags
	providerName string
	maxTurns     uint32
	dbPath       string
	verbose      bool

	logger *zap.Logger
)

func main() {
	// Load .env file if it exists (ignore errors if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "theseus",
		Short: "Plan-gated research agent with reviewed tool-calling runs",
		Long: `Theseus drives an LLM through plan-gated, self-reviewed tool-calling
turns until it can answer your question, streaming its reasoning and
the final answer as it goes.

Runs that need clarification suspend into a checkpoint and resume once
you answer. With a database configured, checkpoints and run history
survive across invocations.

Examples:
  theseus ask "Summarize the Q3 incident reports" -p anthropic
  theseus ask "What does this diagram show?" --attach flow.png -p openai
  theseus resume 3f2a... --answer "The production cluster" -p anthropic
  theseus checkpoints --db runs.db
  theseus runs --db runs.db --limit 10
  theseus tools --mcp-config servers.json`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildLogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().Uint32VarP(&maxTurns, "max-turns", "m", 0, "Turn budget per run (0 uses THESEUS_MAX_TURNS or the default)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite file for checkpoints and run history (default THESEUS_DB_PATH, else in-memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging and run statistics")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(checkpointsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger configures production logging on stderr so stdout stays
// clean for the streamed answer. THESEUS_LOG_LEVEL picks the level;
// --verbose forces debug.
func buildLogger(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := os.Getenv("THESEUS_LOG_LEVEL"); raw != "" {
		parsed, err := zapcore.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid THESEUS_LOG_LEVEL %q: %w", raw, err)
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func options() cli.Options {
	return cli.Options{
		Provider: providerName,
		MaxTurns: maxTurns,
		DBPath:   dbPath,
		Verbose:  verbose,
		Logger:   logger,
	}
}

// runContext cancels on Ctrl-C so a run can stop cleanly and record its
// partial progress.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func askCmd() *cobra.Command {
	var (
		attachments []string
		mcpConfig   string
		aiSummaries bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one question through the agent",
		Long: `Ask runs a single question to completion. The agent plans, calls
tools, reviews its own progress, and streams the final answer to
stdout. Runs that need clarification print a checkpoint ID to resume
with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			opts := options()
			opts.AISummaries = aiSummaries
			return cli.Ask(ctx, args[0], attachments, mcpConfig, opts)
		},
	}

	cmd.Flags().StringArrayVar(&attachments, "attach", nil, "Image file to include with the question (repeatable)")
	cmd.Flags().StringVar(&mcpConfig, "mcp-config", "", "JSON config of MCP servers to mount (default THESEUS_MCP_SERVERS)")
	cmd.Flags().BoolVar(&aiSummaries, "ai-summaries", false, "Reword progress notes with the model")

	return cmd
}

func resumeCmd() *cobra.Command {
	var (
		answer    string
		mcpConfig string
	)

	cmd := &cobra.Command{
		Use:   "resume [checkpoint-id]",
		Short: "Answer a clarification and continue a suspended run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			return cli.Resume(ctx, args[0], answer, mcpConfig, options())
		},
	}

	cmd.Flags().StringVarP(&answer, "answer", "a", "", "Answer to the clarification question (required)")
	cmd.Flags().StringVar(&mcpConfig, "mcp-config", "", "JSON config of MCP servers to mount (default THESEUS_MCP_SERVERS)")
	_ = cmd.MarkFlagRequired("answer")

	return cmd
}

func checkpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List suspended runs waiting on an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Checkpoints(cmd.Context(), options())
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Runs(cmd.Context(), limit, options())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")

	return cmd
}

func toolsCmd() *cobra.Command {
	var (
		mcpConfig   string
		showSchemas bool
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a run would offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(cmd.Context(), mcpConfig, showSchemas, options())
		},
	}

	cmd.Flags().StringVar(&mcpConfig, "mcp-config", "", "JSON config of MCP servers to mount (default THESEUS_MCP_SERVERS)")
	cmd.Flags().BoolVarP(&showSchemas, "schemas", "s", false, "Show each tool's input schema")

	return cmd
}
