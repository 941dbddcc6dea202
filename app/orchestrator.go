package app

import (
	"context"
	"fmt"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/plan"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/internal/errors"
	"hypocycle/internal/metrics"
	"hypocycle/internal/trend"
	"hypocycle/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig holds pipeline-level settings
type OrchestratorConfig struct {
	Ordering     verdict.Ordering // lexicographic (default) or ordinal
	AllOrNothing bool             // passed through to the executor
	Concurrency  int              // cycles run at once by RunMany
}

// Orchestrator threads a hypothesis through interpretation, execution and
// trend analysis. It never mutates specs or results.
type Orchestrator struct {
	interpreter *Interpreter
	executor    ports.ExecutorPort
	repo        ports.RecordRepository // optional
	events      ports.CycleEventSink   // optional
	config      OrchestratorConfig
	metrics     *metrics.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new orchestrator. repo may be nil.
func NewOrchestrator(
	interpreter *Interpreter,
	executor ports.ExecutorPort,
	repo ports.RecordRepository,
	config OrchestratorConfig,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Ordering == "" {
		config.Ordering = verdict.OrderingLexicographic
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Orchestrator{
		interpreter: interpreter,
		executor:    executor,
		repo:        repo,
		config:      config,
		metrics:     recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// WithEvents publishes stage progress of every cycle to sink.
func (o *Orchestrator) WithEvents(sink ports.CycleEventSink) *Orchestrator {
	o.events = sink
	return o
}

func (o *Orchestrator) emit(cycleID core.CycleID, eventType string, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(ports.CycleEvent{
		CycleID:   cycleID,
		Type:      eventType,
		Data:      data,
		Timestamp: o.now(),
	})
}

// CycleRequest describes one cycle
type CycleRequest struct {
	Hypothesis   string       `json:"hypothesis"`
	FollowUp     string       `json:"follow_up,omitempty"`
	AllowPartial bool         `json:"allow_partial,omitempty"`
	CycleID      core.CycleID `json:"cycle_id,omitempty"` // generated when empty
}

// CycleResult is everything one cycle produced. FollowUp is set when a
// follow-up cycle was started.
type CycleResult struct {
	CycleID   core.CycleID            `json:"cycle_id"`
	Batch     *plan.Batch             `json:"batch,omitempty"`
	Execution *ports.ExecutionReport  `json:"execution,omitempty"`
	Record    *verdict.AnalysisRecord `json:"record,omitempty"`
	FollowUp  *CycleResult            `json:"follow_up,omitempty"`
}

// RunCycle runs one cycle and, when the verdict is supported and a follow-up
// is requested, one follow-up cycle.
//
// Interpretation failures and schema violations abort with a nil result.
// Per-sample execution failures abort with the batch and execution report
// attached unless AllowPartial is set. A failed follow-up returns the first
// cycle's result together with the follow-up's error. Cancellation at a
// stage boundary of the current cycle returns a nil result and the context
// error.
func (o *Orchestrator) RunCycle(ctx context.Context, req CycleRequest) (*CycleResult, error) {
	if req.CycleID.IsEmpty() {
		req.CycleID = core.NewCycleID()
	}
	o.emit(req.CycleID, ports.EventCycleStarted, map[string]any{"hypothesis": req.Hypothesis})

	result, err := o.runCycle(ctx, req)
	if err != nil {
		code := errors.Classify(err)
		o.metrics.Cycle(code)
		o.emit(req.CycleID, ports.EventCycleFailed, map[string]any{"code": code, "error": err.Error()})
		return result, err
	}
	o.metrics.Cycle(string(result.Record.Conclusion))
	o.emit(req.CycleID, ports.EventCycleCompleted, map[string]any{"conclusion": string(result.Record.Conclusion)})

	if !result.Record.Supported() || req.FollowUp == "" {
		return result, nil
	}

	o.logger.Info("starting follow-up cycle",
		zap.String("parent_cycle", result.CycleID.String()),
		zap.String("hypothesis", req.FollowUp))

	// Follow-ups do not chain further.
	next, err := o.RunCycle(ctx, CycleRequest{
		Hypothesis:   req.FollowUp,
		AllowPartial: req.AllowPartial,
	})
	result.FollowUp = next
	if err != nil {
		return result, fmt.Errorf("follow-up cycle: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, req CycleRequest) (*CycleResult, error) {
	cycleID := req.CycleID
	logger := o.logger.With(zap.String("cycle_id", cycleID.String()))

	// Stage 1: interpretation
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	batch, err := o.interpreter.Interpret(ctx, req.Hypothesis)
	o.metrics.ObserveStage("interpret", start)
	if err != nil {
		logger.Info("cycle aborted at interpretation", zap.Error(err))
		return nil, err
	}
	result := &CycleResult{CycleID: cycleID, Batch: batch}
	interpreted := map[string]any{
		"source":     batch.Source,
		"samples":    len(batch.Specs),
		"sample_ids": spec.IDs(batch.Specs),
	}
	if fp, err := spec.Fingerprint(batch.Specs); err == nil {
		interpreted["fingerprint"] = fp.Short()
		logger.Debug("batch interpreted",
			zap.String("fingerprint", fp.Short()), zap.Int("samples", len(batch.Specs)))
	} else {
		logger.Warn("batch fingerprint failed", zap.Error(err))
	}
	o.emit(cycleID, ports.EventInterpreted, interpreted)

	// Stage 2: execution
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start = time.Now()
	report, err := o.executor.Execute(ctx, batch.Specs, ports.ExecuteOptions{AllOrNothing: o.config.AllOrNothing})
	o.metrics.ObserveStage("execute", start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error("execution failed", zap.Error(err))
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Execution = report
	o.emit(cycleID, ports.EventExecuted, map[string]any{
		"strategy": report.Strategy,
		"results":  len(report.Results),
		"failures": len(report.Errors),
	})
	if report.Failed() {
		o.metrics.SampleFailures(report.Strategy, len(report.Errors))
		for _, e := range report.Errors {
			logger.Warn("sample failed",
				zap.String("sample_id", e.SampleID.String()),
				zap.String("reason", e.Reason))
		}
		if !req.AllowPartial {
			return result, report.Err()
		}
	}

	// Stage 3: analysis
	start = time.Now()
	record, err := o.analyzer(batch.Specs).Analyze(req.Hypothesis, report.Results)
	o.metrics.ObserveStage("analyze", start)
	if err != nil {
		return result, err
	}
	record.CycleID = cycleID
	record.Partial = report.Failed()
	result.Record = record
	o.emit(cycleID, ports.EventAnalyzed, map[string]any{"trend_increasing": record.TrendIncreasing})

	logger.Info("cycle complete",
		zap.String("conclusion", string(record.Conclusion)),
		zap.Int("samples", len(record.Results)),
		zap.Bool("partial", record.Partial))

	if err := o.persist(ctx, cycleID, batch.Specs, record); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) analyzer(specs []spec.SampleSpecification) *trend.Analyzer {
	opts := []trend.Option{trend.WithClock(o.now)}
	if o.config.Ordering == verdict.OrderingOrdinal {
		opts = append(opts, trend.WithOrdinals(spec.Ordinals(specs)))
	}
	return trend.NewAnalyzer(opts...)
}

func (o *Orchestrator) persist(ctx context.Context, cycleID core.CycleID, specs []spec.SampleSpecification, record *verdict.AnalysisRecord) error {
	if o.repo == nil {
		return nil
	}
	start := time.Now()
	defer o.metrics.ObserveStage("persist", start)

	if err := o.repo.SaveBatch(ctx, cycleID, specs); err != nil {
		return errors.Wrap(err, "failed to save batch")
	}
	if err := o.repo.SaveRecord(ctx, record); err != nil {
		return errors.Wrap(err, "failed to save analysis record")
	}
	return nil
}

// CycleOutcome pairs a request's result with its error.
type CycleOutcome struct {
	Request CycleRequest
	Result  *CycleResult
	Err     error
}

// RunMany runs independent cycles concurrently, at most Concurrency at a
// time. Each cycle gets its own cycle id; one cycle failing does not stop
// the others. Outcomes are returned in request order.
func (o *Orchestrator) RunMany(ctx context.Context, reqs []CycleRequest) []CycleOutcome {
	outcomes := make([]CycleOutcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)
	for i, req := range reqs {
		i, req := i, req
		if req.CycleID.IsEmpty() {
			req.CycleID = core.NewCycleID()
		}
		g.Go(func() error {
			result, err := o.RunCycle(ctx, req)
			outcomes[i] = CycleOutcome{Request: req, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
