package container

import (
	"context"
	"fmt"
	"net/http"

	"hypocycle/adapters/excel"
	"hypocycle/adapters/execution/live"
	"hypocycle/adapters/execution/simulated"
	"hypocycle/adapters/llm"
	"hypocycle/adapters/llm/heuristic"
	"hypocycle/adapters/store"
	"hypocycle/app"
	"hypocycle/domain/verdict"
	"hypocycle/internal/config"
	"hypocycle/internal/metrics"
	"hypocycle/internal/rng"
	"hypocycle/internal/usage"
	"hypocycle/ports"

	"go.uber.org/zap"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Usage   *usage.Tracker

	// Collaborators
	Reasoning ports.ReasoningPort
	Executor  ports.ExecutorPort
	Repo      ports.RecordRepository // nil when STORE_DRIVER=none
	Exporter  ports.RecordExporter

	// Pipeline
	Interpreter  *app.Interpreter
	Orchestrator *app.Orchestrator

	store *store.RecordStore
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewRecorder(),
		Exporter: excel.NewExporter(),
	}
	c.Usage = usage.NewTracker(c.Metrics, logger.Named("usage"))

	if err := c.initReasoning(); err != nil {
		return nil, fmt.Errorf("failed to initialize reasoning: %w", err)
	}
	if err := c.initExecutor(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	if err := c.initStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	c.initPipeline()

	logger.Info("container initialized",
		zap.String("reasoning", cfg.Reasoning.Mode),
		zap.String("execution", cfg.Execution.Mode),
		zap.String("store", cfg.Store.Driver))
	return c, nil
}

// initReasoning wires the heuristic catalog, optionally behind the LLM
func (c *Container) initReasoning() error {
	catalog := heuristic.DefaultCatalog()
	if path := c.Config.Reasoning.CatalogPath; path != "" {
		loaded, err := heuristic.LoadCatalog(path)
		if err != nil {
			return err
		}
		catalog = loaded
	}
	heuristicReasoner := heuristic.NewReasoner(catalog)

	switch c.Config.Reasoning.Mode {
	case config.ReasoningLLM:
		var fallback ports.ReasoningPort
		if c.Config.Reasoning.FallbackToHeuristic {
			fallback = heuristicReasoner
		}
		adapter, err := llm.NewReasonerAdapter(llm.Config{
			Model:               c.Config.Reasoning.Model,
			APIKey:              c.Config.Reasoning.AnthropicKey,
			BaseURL:             c.Config.Reasoning.BaseURL,
			Temperature:         c.Config.Reasoning.Temperature,
			MaxTokens:           c.Config.Reasoning.MaxTokens,
			Timeout:             c.Config.Reasoning.Timeout,
			FallbackToHeuristic: c.Config.Reasoning.FallbackToHeuristic,
		}, fallback, c.Logger.Named("llm"))
		if err != nil {
			return err
		}
		c.Reasoning = adapter.WithUsage(c.Usage)
	default:
		c.Reasoning = heuristicReasoner
	}
	return nil
}

// initExecutor wires the simulated or live strategy
func (c *Container) initExecutor(ctx context.Context) error {
	exec := c.Config.Execution
	switch exec.Mode {
	case config.ExecutionLive:
		client := live.NewClient(exec.LabURL, &http.Client{})
		c.Executor = live.NewExecutor(client, live.Config{
			Timeout:       exec.Timeout,
			RatePerSecond: exec.RatePerSecond,
			BatchSize:     exec.BatchSize,
		}, c.Logger.Named("live"))
	default:
		stream, err := rng.NewSource().SeededStream(ctx, "simulated-execution", exec.Seed)
		if err != nil {
			return err
		}
		c.Executor = simulated.NewExecutor(stream, simulated.Config{NoiseFraction: exec.NoiseFraction}, c.Logger.Named("simulated"))
	}
	return nil
}

// initStore opens the optional record store
func (c *Container) initStore(ctx context.Context) error {
	if c.Config.Store.Driver == config.StoreNone || c.Config.Store.Driver == "" {
		return nil
	}
	s, err := store.Open(ctx, c.Config.Store.Driver, c.Config.Store.DSN, c.Logger.Named("store"))
	if err != nil {
		return err
	}
	c.store = s
	c.Repo = s
	return nil
}

func (c *Container) initPipeline() {
	c.Interpreter = app.NewInterpreter(c.Reasoning, c.Metrics, c.Logger.Named("interpreter"))
	c.Orchestrator = app.NewOrchestrator(c.Interpreter, c.Executor, c.Repo, app.OrchestratorConfig{
		Ordering:     verdict.Ordering(c.Config.Cycle.Ordering),
		AllOrNothing: c.Config.Execution.AllOrNothing,
		Concurrency:  c.Config.Cycle.Concurrency,
	}, c.Metrics, c.Logger.Named("orchestrator"))
}

// CycleRequest builds a request with the configured follow-up and partial
// result policy
func (c *Container) CycleRequest(hypothesis string) app.CycleRequest {
	return app.CycleRequest{
		Hypothesis:   hypothesis,
		FollowUp:     c.Config.Cycle.FollowUp,
		AllowPartial: c.Config.Cycle.AllowPartial,
	}
}

// Close releases the store connection
func (c *Container) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
