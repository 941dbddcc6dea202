package app

import (
	"context"
	"fmt"
	"strings"

	"hypocycle/domain/core"
	"hypocycle/domain/plan"
	"hypocycle/domain/spec"
	"hypocycle/internal/metrics"
	"hypocycle/ports"

	"go.uber.org/zap"
)

// Interpreter turns a hypothesis into a validated batch of sample
// specifications by asking a reasoning collaborator for a sweep plan.
type Interpreter struct {
	reasoning ports.ReasoningPort
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// NewInterpreter creates an interpreter over a reasoning collaborator
func NewInterpreter(reasoning ports.ReasoningPort, recorder *metrics.Recorder, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{reasoning: reasoning, metrics: recorder, logger: logger}
}

// Interpret returns one spec per sweep value, built fresh from the plan's
// template. It never returns a partial batch: any failure yields a nil batch.
func (i *Interpreter) Interpret(ctx context.Context, hypothesis string) (*plan.Batch, error) {
	if strings.TrimSpace(hypothesis) == "" {
		i.metrics.Interpretation("interpreter", string(plan.StatusUnrecognized))
		return nil, core.NewUnsupportedHypothesis(hypothesis, "interpreter", "empty hypothesis")
	}

	interp, err := i.reasoning.Interpret(ctx, hypothesis, spec.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("interpret hypothesis: %w", err)
	}
	i.metrics.Interpretation(interp.Source, string(interp.Status))
	if !interp.IsRecognized() {
		i.logger.Info("hypothesis not recognized",
			zap.String("hypothesis", hypothesis),
			zap.String("source", interp.Source),
			zap.String("reason", interp.Reason))
		return nil, core.NewUnsupportedHypothesis(hypothesis, interp.Source, interp.Reason)
	}

	sweep := interp.Plan.Clone()
	specs, err := BuildBatch(sweep)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("hypothesis interpreted",
		zap.String("topic", sweep.Topic),
		zap.String("varying_field", sweep.VaryingField),
		zap.Int("samples", len(specs)))

	return &plan.Batch{
		Hypothesis: hypothesis,
		Source:     interp.Source,
		Plan:       sweep,
		Specs:      specs,
	}, nil
}

// BuildBatch expands a sweep plan into validated specs with ids
// "<topic>_<n>" and 1-based ordinals.
func BuildBatch(sweep plan.SweepPlan) ([]spec.SampleSpecification, error) {
	if err := sweep.Validate(); err != nil {
		return nil, err
	}

	specs := make([]spec.SampleSpecification, 0, len(sweep.Values))
	for n, value := range sweep.Values {
		s, err := sweep.Template.WithParameter(sweep.VaryingField, value)
		if err != nil {
			return nil, err
		}
		s.SampleID = core.NewSampleID(sweep.Topic, n+1)
		s.Ordinal = n + 1
		s.VaryingField = sweep.VaryingField
		s.MeasurementScale = sweep.Measurement.Scale
		specs = append(specs, s)
	}

	if err := spec.ValidateBatch(specs, sweep.VaryingField); err != nil {
		return nil, err
	}
	return specs, nil
}
