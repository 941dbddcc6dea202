package simulated

import (
	"context"
	"errors"
	"testing"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/internal/testkit"
	"hypocycle/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_OneResultPerSpec(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{NoiseFraction: DefaultNoiseFraction}, nil)
	batch := testkit.DensityBatch()

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Equal(t, Strategy, report.Strategy)
	require.Len(t, report.Results, len(batch))

	for _, s := range batch {
		v, ok := report.Results[s.SampleID]
		require.True(t, ok, "missing result for %s", s.SampleID)
		base := s.BiologicalContext.CellDensity * 0.001
		assert.GreaterOrEqual(t, v, base*0.9)
		assert.LessOrEqual(t, v, base*1.1)
	}
}

func TestExecute_ReproducibleUnderSeed(t *testing.T) {
	batch := testkit.DensityBatch()

	a, err := NewExecutor(testkit.Rand(99), Config{NoiseFraction: 0.1}, nil).Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	b, err := NewExecutor(testkit.Rand(99), Config{NoiseFraction: 0.1}, nil).Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, a.Results, b.Results)
}

func TestExecute_NoiselessIsExact(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{}, nil)

	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, report.Results["p53_density_exp_1"], 1e-9)
	assert.InDelta(t, 100.0, report.Results["p53_density_exp_4"], 1e-9)
}

func TestExecute_UsesEachSpecsVaryingField(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{}, nil)
	batch := testkit.Batch("p53_contact_exp", spec.FieldCultureAge, 24, 48)

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 12.0, report.Results["p53_contact_exp_1"], 1e-9)
	assert.InDelta(t, 24.0, report.Results["p53_contact_exp_2"], 1e-9)
}

func TestExecute_SubsetAndOrderDoNotChangeValues(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{}, nil)
	batch := testkit.Batch("p53_contact_exp", spec.FieldCultureAge, 24, 48, 72)

	full, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	single, err := exec.Execute(context.Background(), batch[:1], ports.ExecuteOptions{})
	require.NoError(t, err)
	reversed, err := exec.Execute(context.Background(), []spec.SampleSpecification{batch[2], batch[1], batch[0]}, ports.ExecuteOptions{})
	require.NoError(t, err)

	assert.InDelta(t, 12.0, single.Results["p53_contact_exp_1"], 1e-9)
	assert.Equal(t, full.Results["p53_contact_exp_1"], single.Results["p53_contact_exp_1"])
	assert.Equal(t, full.Results, reversed.Results)
}

func TestExecute_MeasurementScaleOverridesResponses(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{}, nil)
	batch := testkit.Batch("p53_contact_exp", spec.FieldCultureAge, 24)
	batch[0].MeasurementScale = 2

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 48.0, report.Results["p53_contact_exp_1"], 1e-9)
}

func TestExecute_MalformedSpecIsPerSample(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{NoiseFraction: 0.1}, nil)
	batch := testkit.DensityBatch()
	batch[2] = batch[2].Clone()
	batch[2].StainingProtocol.PrimaryAntibodies = nil

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, core.SampleID("p53_density_exp_3"), report.Errors[0].SampleID)
	assert.True(t, core.IsSchemaViolation(report.Errors[0]))
	assert.Len(t, report.Results, 3)

	var execErr *core.ExecutionError
	assert.True(t, errors.As(report.Err(), &execErr))
}

func TestExecute_AllOrNothing(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{NoiseFraction: 0.1}, nil)
	batch := testkit.DensityBatch()
	batch[3].SampleID = batch[0].SampleID

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{AllOrNothing: true})
	require.NoError(t, err)
	assert.Len(t, report.Errors, 2)
	assert.Empty(t, report.Results)
}

func TestExecute_VersionMismatchAborts(t *testing.T) {
	exec := NewExecutor(testkit.Rand(1), Config{}, nil)
	batch := testkit.DensityBatch()
	batch[1].SchemaVersion = "2.0.0"

	report, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	assert.Nil(t, report)
	assert.True(t, core.IsSchemaViolation(err))
}

func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(testkit.Rand(1), Config{}, nil).Execute(ctx, testkit.DensityBatch(), ports.ExecuteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
