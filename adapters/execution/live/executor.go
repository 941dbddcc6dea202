package live

import (
	"context"
	"fmt"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/internal/errors"
	"hypocycle/ports"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Strategy names this executor in reports and metrics.
const Strategy = "live"

// Config tunes the live strategy.
type Config struct {
	Timeout       time.Duration // whole-batch deadline
	RatePerSecond float64       // instrument submissions per second, <= 0 is unlimited
	BatchSize     int           // samples per submission, <= 0 sends everything at once
}

// Executor forwards specs to an instrument in paced chunks and maps the
// answers back onto sample ids.
type Executor struct {
	instrument ports.InstrumentPort
	config     Config
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewExecutor creates a live executor over an instrument.
func NewExecutor(instrument ports.InstrumentPort, config Config, logger *zap.Logger) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		instrument: instrument,
		config:     config,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

var _ ports.ExecutorPort = (*Executor)(nil)

// Execute measures the batch. A deadline hit mid-batch fails the remaining
// samples with ExecutionError; cancellation by the caller abandons the batch.
func (e *Executor) Execute(ctx context.Context, specs []spec.SampleSpecification, opts ports.ExecuteOptions) (*ports.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, s := range specs {
		if err := spec.CheckVersion(s.SchemaVersion); err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.SampleID, err)
		}
	}

	report := &ports.ExecutionReport{Strategy: Strategy, Results: make(verdict.ResultSet, len(specs))}
	if len(specs) == 0 {
		return report, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	for _, chunk := range chunks(specs, e.config.BatchSize) {
		if err := e.limiter.Wait(runCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.failAll(report, chunk, "instrument timeout", err)
			continue
		}

		results, failures, err := e.instrument.Measure(runCtx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if core.IsSchemaViolation(err) {
				return nil, err
			}
			reason := "instrument request failed"
			switch {
			case runCtx.Err() != nil:
				reason = "instrument timeout"
			case errors.Classify(err) == errors.CodeExternalService:
				reason = "instrument unavailable"
			}
			e.failAll(report, chunk, reason, err)
			continue
		}
		e.collect(report, chunk, results, failures)
	}

	if report.Failed() {
		e.logger.Warn("live execution had failures",
			zap.Int("failed", len(report.Errors)), zap.Int("measured", len(report.Results)))
		if opts.AllOrNothing {
			report.Results = verdict.ResultSet{}
		}
	}
	return report, nil
}

func (e *Executor) collect(report *ports.ExecutionReport, chunk []spec.SampleSpecification, results verdict.ResultSet, failures map[core.SampleID]string) {
	want := make(map[core.SampleID]bool, len(chunk))
	for _, s := range chunk {
		want[s.SampleID] = true
		if reason, failed := failures[s.SampleID]; failed {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, reason, nil))
			continue
		}
		v, ok := results[s.SampleID]
		if !ok {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, "missing instrument response", nil))
			continue
		}
		report.Results[s.SampleID] = v
	}
	for id := range results {
		if !want[id] {
			e.logger.Warn("instrument returned a result for an unknown sample", zap.String("sample_id", id.String()))
		}
	}
}

func (e *Executor) failAll(report *ports.ExecutionReport, chunk []spec.SampleSpecification, reason string, cause error) {
	for _, s := range chunk {
		report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, reason, cause))
	}
}

func chunks(specs []spec.SampleSpecification, size int) [][]spec.SampleSpecification {
	if size <= 0 || size >= len(specs) {
		return [][]spec.SampleSpecification{specs}
	}
	var out [][]spec.SampleSpecification
	for start := 0; start < len(specs); start += size {
		end := min(start+size, len(specs))
		out = append(out, specs[start:end])
	}
	return out
}
