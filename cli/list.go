// Read-only commands: pending checkpoints, run history, and the tool list.
//
// Information Hiding:
// - Table formatting hidden
// - Store and registry construction hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/richinex/theseus/tools"
)

// Checkpoints prints every suspended run still waiting on an answer.
func Checkpoints(ctx context.Context, opts Options) error {
	dbPath, err := requireDB(opts)
	if err != nil {
		return err
	}
	checkpoints, _, closeStores, err := openStores(dbPath)
	if err != nil {
		return err
	}
	defer closeStores()

	pending, err := checkpoints.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending checkpoints.")
		return nil
	}

	fmt.Printf("%d pending checkpoint(s):\n\n", len(pending))
	for _, cp := range pending {
		fmt.Printf("  %s\n", cp.ID)
		fmt.Printf("    run:      %s\n", cp.RunID)
		fmt.Printf("    waiting:  %s\n", age(cp.CreatedAt))
		fmt.Printf("    question: %s\n\n", truncate(cp.Question, 100))
	}
	fmt.Println("Resume one with: theseus resume <checkpoint-id> --answer \"...\"")
	return nil
}

// Runs prints the most recent run records, newest first.
func Runs(ctx context.Context, limit int, opts Options) error {
	dbPath, err := requireDB(opts)
	if err != nil {
		return err
	}
	_, runs, closeStores, err := openStores(dbPath)
	if err != nil {
		return err
	}
	defer closeStores()

	records, err := runs.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Printf("%-36s  %-13s  %5s  %8s  %9s  %s\n",
		"RUN", "STATUS", "TURNS", "COST", "DURATION", "STARTED")
	for _, rec := range records {
		fmt.Printf("%-36s  %-13s  %5d  %8s  %9s  %s\n",
			rec.RunID,
			rec.Status,
			rec.Turns,
			fmt.Sprintf("$%.4f", rec.CostUSD),
			rec.Duration.Round(100*time.Millisecond),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"))
		if opts.Verbose && rec.Answer != "" {
			fmt.Printf("    %s\n", truncate(strings.ReplaceAll(rec.Answer, "\n", " "), 120))
		}
	}
	return nil
}

// ListTools prints the tools a run would offer, including those of any
// configured MCP servers. Verbose adds each tool's input schema.
func ListTools(ctx context.Context, mcpConfigPath string, verbose bool, opts Options) error {
	if mcpConfigPath == "" {
		mcpConfigPath = os.Getenv("THESEUS_MCP_SERVERS")
	}
	registry := tools.NewRegistry()

	// The built-in tools list fine without their collaborators; only
	// Execute needs them.
	builtins := []tools.Tool{
		tools.NewPlanTool(),
		tools.NewSynthesizeTool(nil, nil, nil),
		tools.NewFallbackTool(nil, nil),
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	closeServers, err := mountServers(ctx, registry, mcpConfigPath, opts.logger())
	if err != nil {
		return err
	}
	defer closeServers()

	fmt.Println("Available tools:")
	for _, meta := range registry.List() {
		fmt.Printf("\n  %s\n", meta.Name)
		fmt.Printf("    %s\n", meta.Description)
		if meta.ConnectorID != "" {
			fmt.Printf("    connector: %s\n", meta.ConnectorID)
		}
		if verbose && len(meta.InputSchema) > 0 {
			fmt.Printf("    schema: %s\n", string(meta.InputSchema))
		}
	}
	return nil
}

// requireDB resolves the database path for commands that only make sense
// against durable state.
func requireDB(opts Options) (string, error) {
	path := opts.DBPath
	if path == "" {
		path = os.Getenv("THESEUS_DB_PATH")
	}
	if path == "" {
		return "", fmt.Errorf("no database configured; set --db or THESEUS_DB_PATH")
	}
	return path, nil
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
