// Scheduler builder for fluent configuration.
//
// Information Hiding:
// - Default collaborator construction hidden
// - Built-in tool registration hidden
package agent

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/review"
	"github.com/richinex/theseus/storage"
	"github.com/richinex/theseus/stream"
	"github.com/richinex/theseus/tools"
)

// Builder assembles a Scheduler from its collaborators. Every setter is
// optional except the provider: unset collaborators get working defaults
// (in-memory stores, a silent emitter, an automatic review engine).
type Builder struct {
	provider    llm.Provider
	registry    *tools.Registry
	budgeter    *budget.Budgeter
	reviewer    *review.Engine
	emitter     *stream.Emitter
	answerSink  tools.AnswerSink
	checkpoints storage.CheckpointStore
	runs        storage.RunStore
	config      Config
	logger      *zap.Logger
}

// NewBuilder creates a builder around a language model provider.
func NewBuilder(provider llm.Provider) *Builder {
	return &Builder{provider: provider}
}

// WithRegistry sets the tool registry. The builder adds the built-in plan,
// synthesis, and fallback tools to it when they are missing.
func (b *Builder) WithRegistry(registry *tools.Registry) *Builder {
	b.registry = registry
	return b
}

// WithBudgeter sets the fragment and image budgeter.
func (b *Builder) WithBudgeter(budgeter *budget.Budgeter) *Builder {
	b.budgeter = budgeter
	return b
}

// WithReviewer overrides the built-in review engine.
func (b *Builder) WithReviewer(reviewer *review.Engine) *Builder {
	b.reviewer = reviewer
	return b
}

// WithEmitter sets the reasoning stream emitter.
func (b *Builder) WithEmitter(emitter *stream.Emitter) *Builder {
	b.emitter = emitter
	return b
}

// WithAnswerSink sets where the final answer streams to.
func (b *Builder) WithAnswerSink(sink tools.AnswerSink) *Builder {
	b.answerSink = sink
	return b
}

// WithCheckpointStore sets where suspended runs are persisted.
func (b *Builder) WithCheckpointStore(store storage.CheckpointStore) *Builder {
	b.checkpoints = store
	return b
}

// WithRunStore sets where run outcomes are recorded.
func (b *Builder) WithRunStore(store storage.RunStore) *Builder {
	b.runs = store
	return b
}

// WithConfig sets the scheduler configuration.
func (b *Builder) WithConfig(config Config) *Builder {
	b.config = config
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Build wires the scheduler together. The registry is completed with the
// built-in tools so every run can plan, synthesize, and fall back.
func (b *Builder) Build() (*Scheduler, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("a language model provider is required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := llm.NewClient(b.provider, logger)

	registry := b.registry
	if registry == nil {
		registry = tools.NewRegistry()
	}

	budgeter := b.budgeter
	if budgeter == nil {
		budgeter = &budget.Budgeter{}
	}

	reviewer := b.reviewer
	if reviewer == nil {
		reviewer = review.NewEngine(client, logger)
	}

	emitter := b.emitter
	if emitter == nil {
		emitter = stream.NewEmitter(nil, nil, 0, logger)
	}

	checkpoints := b.checkpoints
	runs := b.runs
	if checkpoints == nil || runs == nil {
		mem := storage.NewInMemoryStorage()
		if checkpoints == nil {
			checkpoints = mem
		}
		if runs == nil {
			runs = mem
		}
	}

	if !registry.Has(tools.PlanToolName) {
		if err := registry.Register(tools.NewPlanTool()); err != nil {
			return nil, fmt.Errorf("register plan tool: %w", err)
		}
	}
	if !registry.Has(tools.SynthesizeToolName) {
		if err := registry.Register(tools.NewSynthesizeTool(client, budgeter, b.answerSink)); err != nil {
			return nil, fmt.Errorf("register synthesis tool: %w", err)
		}
	}
	if !registry.Has(tools.FallbackToolName) {
		if err := registry.Register(tools.NewFallbackTool(client, b.answerSink)); err != nil {
			return nil, fmt.Errorf("register fallback tool: %w", err)
		}
	}

	dispatcher := tools.NewDispatcher(registry, budgeter, tools.DispatcherConfig{
		MaxParallel: b.config.MaxParallelTools,
		Tool: tools.Config{
			TimeoutSecs: b.config.ToolTimeoutSecs,
			MaxAttempts: b.config.ToolMaxAttempts,
		},
	}, logger)

	return &Scheduler{
		client:      client,
		registry:    registry,
		dispatcher:  dispatcher,
		reviewer:    reviewer,
		emitter:     emitter,
		checkpoints: checkpoints,
		runs:        runs,
		config:      b.config,
		logger:      logger,
	}, nil
}
