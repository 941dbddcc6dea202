package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/ports"

	"go.uber.org/zap"
)

// Strategy names this executor in reports and metrics.
const Strategy = "simulated"

// DefaultNoiseFraction bounds the perturbation at ±10% of the base value.
const DefaultNoiseFraction = 0.1

// DefaultResponses maps a varying field to the slope of the simulated
// dose-response line.
func DefaultResponses() map[string]float64 {
	return map[string]float64{
		spec.FieldCellDensity: 0.001,
		spec.FieldCultureAge:  0.5,
	}
}

// Config tunes the simulation.
type Config struct {
	NoiseFraction float64
	Responses     map[string]float64 // field -> slope for specs without a measurement scale; unknown fields use slope 1
}

// Executor produces measurements as slope*parameter plus bounded symmetric
// noise drawn from an injected random source. Each spec is measured on its
// own: the parameter is the spec's varying field (cell density when unset)
// and the slope is its measurement scale, falling back to Responses.
type Executor struct {
	config Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExecutor creates a simulated executor. The random source is owned by the
// executor from here on.
func NewExecutor(rng *rand.Rand, config Config, logger *zap.Logger) *Executor {
	if config.Responses == nil {
		config.Responses = DefaultResponses()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{config: config, logger: logger, rng: rng}
}

var _ ports.ExecutorPort = (*Executor)(nil)

// Execute measures every spec in the batch.
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
	counts := make(map[core.SampleID]int, len(specs))
	for _, s := range specs {
		counts[s.SampleID]++
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if counts[s.SampleID] > 1 {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, "duplicate sample id in batch", nil))
			continue
		}
		if err := spec.Validate(s); err != nil {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, "malformed spec", err))
			continue
		}
		field, slope := e.response(s)
		value, err := s.Parameter(field)
		if err != nil {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, "missing varying parameter", err))
			continue
		}
		report.Results[s.SampleID] = e.measure(value * slope)
	}

	if len(report.Errors) > 0 {
		e.logger.Warn("simulated execution had failures",
			zap.Int("failed", len(report.Errors)), zap.Int("measured", len(report.Results)))
		if opts.AllOrNothing {
			report.Results = verdict.ResultSet{}
		}
	}
	return report, nil
}

// response picks the parameter and slope for one spec.
func (e *Executor) response(s spec.SampleSpecification) (string, float64) {
	field := s.VaryingField
	if field == "" {
		field = spec.FieldCellDensity
	}
	if s.MeasurementScale > 0 {
		return field, s.MeasurementScale
	}
	if slope, ok := e.config.Responses[field]; ok {
		return field, slope
	}
	return field, 1
}

// measure adds noise uniform in [-f*base, +f*base).
func (e *Executor) measure(base float64) float64 {
	f := e.config.NoiseFraction
	return base + (e.rng.Float64()*2-1)*f*base
}
