// Session assembly shared by the CLI commands.
//
// Information Hiding:
// - Provider construction and settings lookup hidden
// - Store selection (SQLite file vs in-memory) hidden
// - MCP server mounting and shutdown hidden

package cli

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/richinex/theseus/agent"
	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/config"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/mcp"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/storage"
	"github.com/richinex/theseus/stream"
	"github.com/richinex/theseus/tools"
)

// session owns everything one ask or resume invocation needs: the
// assembled scheduler, the stores behind it, and the mounted MCP servers.
// Close releases the stores and servers in reverse mount order.
type session struct {
	scheduler *agent.Scheduler
	settings  config.Settings
	sink      *stream.ConsoleSink
	durable   bool

	closers []func()
}

// Close shuts the session down. Safe to call once.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// newSession assembles a scheduler from the flags and the environment.
// The caller must Close the session even when the run fails.
func newSession(ctx context.Context, mcpConfigPath string, opts Options) (*session, error) {
	logger := opts.logger()

	provider, settings, err := createProvider(opts.Provider)
	if err != nil {
		return nil, err
	}
	if opts.MaxTurns > 0 {
		settings.Run.MaxTurns = opts.MaxTurns
	}

	s := &session{settings: settings}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = settings.Storage.DBPath
	}
	checkpoints, runs, closeStores, err := openStores(dbPath)
	if err != nil {
		return nil, err
	}
	s.durable = dbPath != ""
	s.closers = append(s.closers, closeStores)

	if mcpConfigPath == "" {
		mcpConfigPath = settings.Storage.MCPServersFile
	}
	registry := tools.NewRegistry()
	closeServers, err := mountServers(ctx, registry, mcpConfigPath, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closeServers)

	s.sink = stream.NewConsoleSink(os.Stdout)

	var summarizer stream.Summarizer
	if opts.AISummaries {
		client := llm.NewClient(provider, logger)
		summarizer = stream.NewAISummarizer(client, stream.DefaultSummarizeTimeout, logger)
	}
	emitter := stream.NewEmitter(s.sink, summarizer, settings.Content.StreamStepCap, logger)

	scheduler, err := agent.NewBuilder(provider).
		WithRegistry(registry).
		WithBudgeter(&budget.Budgeter{
			MaxImages:    settings.Content.MaxImages,
			RecentWindow: settings.Content.RecentImages,
		}).
		WithEmitter(emitter).
		WithAnswerSink(stream.NewAnswerRelay(s.sink)).
		WithCheckpointStore(checkpoints).
		WithRunStore(runs).
		WithConfig(agent.Config{
			MaxTurns:         settings.Run.MaxTurns,
			ReviewFrequency:  settings.Run.ReviewFrequency,
			MaxParallelTools: settings.Run.MaxParallelTools,
			ToolTimeoutSecs:  settings.Run.ToolTimeoutSecs,
			ToolMaxAttempts:  settings.Run.MaxToolAttempts,
		}).
		WithLogger(logger).
		Build()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.scheduler = scheduler
	return s, nil
}

// createProvider builds the LLM provider selected by --provider (or the
// THESEUS_PROVIDER environment variable) together with the
// environment-backed settings for that provider.
func createProvider(providerName string) (llm.Provider, config.Settings, error) {
	if providerName == "" {
		providerName = os.Getenv("THESEUS_PROVIDER")
	}
	if providerName == "" {
		return nil, config.Settings{}, fmt.Errorf("--provider is required (or set THESEUS_PROVIDER)")
	}

	providerType, err := llm.ParseProviderType(providerName)
	if err != nil {
		return nil, config.Settings{}, err
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, config.Settings{}, err
	}

	apiKey, err := config.APIKeyFor(providerName)
	if err != nil {
		return nil, config.Settings{}, err
	}

	provider, err := providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return provider, settings, nil
}

// openStores selects the persistence backend. A non-empty path opens a
// SQLite file shared by checkpoints and run history; an empty path keeps
// both in memory, which means checkpoints do not survive the process.
func openStores(path string) (storage.CheckpointStore, storage.RunStore, func(), error) {
	if path == "" {
		mem := storage.NewInMemoryStorage()
		return mem, mem, func() {}, nil
	}
	db, err := storage.OpenSqlite(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, db, func() { _ = db.Close() }, nil
}

// mountServers connects the MCP servers named in the config file and
// registers their tools, plus the agent-delegation pair backed by a lazy
// runtime over the same servers. An empty path mounts nothing.
func mountServers(ctx context.Context, registry *tools.Registry, path string, logger *zap.Logger) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, name := range cfg.ServerNames() {
		manager, err := mcp.DiscoverTools(ctx, logger, name, cfg.MCPServers[name])
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to mount MCP server %s: %w", name, err)
		}
		closers = append(closers, func() { _ = manager.Close() })
		for _, tool := range manager.Tools() {
			if err := registry.Register(tool); err != nil {
				logger.Warn("skipping MCP tool",
					zap.String("server", name),
					zap.Error(err))
			}
		}
	}

	// The runtime connects on first use, so delegation costs nothing
	// until the model actually calls it.
	runtime := mcp.NewRuntime(cfg, logger)
	closers = append(closers, func() { _ = runtime.Close() })
	if err := registry.Register(tools.NewListAgentsTool(runtime)); err != nil {
		closeAll()
		return nil, err
	}
	if err := registry.Register(tools.NewRunAgentTool(runtime)); err != nil {
		closeAll()
		return nil, err
	}

	return closeAll, nil
}

// loadAttachments reads image files into artifacts for the opening message.
func loadAttachments(paths []string) ([]model.ImageArtifact, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	artifacts := make([]model.ImageArtifact, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		artifacts = append(artifacts, model.ImageArtifact{
			FileName: filepath.Base(path),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return artifacts, nil
}

// cliUser identifies the local operator for run records and workspace
// scoping. Overridable so shared databases stay attributable.
func cliUser() model.User {
	email := os.Getenv("THESEUS_USER_EMAIL")
	if email == "" {
		email = "cli@localhost"
	}
	workspace := os.Getenv("THESEUS_WORKSPACE")
	if workspace == "" {
		workspace = "local"
	}
	return model.User{Email: email, Workspace: workspace}
}
