package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hypocycle/app"
	"hypocycle/domain/plan"
	"hypocycle/domain/verdict"
	"hypocycle/internal/config"
	"hypocycle/internal/testkit"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Reasoning: config.ReasoningConfig{Mode: config.ReasoningHeuristic},
		Execution: config.ExecutionConfig{Mode: config.ExecutionSimulated, Seed: 1, NoiseFraction: 0.1},
		Cycle:     config.CycleConfig{FollowUp: config.DefaultFollowUp, Ordering: "lexicographic", Concurrency: 2},
		Store:     config.StoreConfig{Driver: config.StoreNone},
	}
}

// execute resets cmd's flags, applies the given ones and runs it directly
func execute(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) (string, error) {
	t.Helper()
	cfg = testConfig()

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestRun_SupportedWithFollowUp(t *testing.T) {
	out, err := execute(t, runCmd, nil, testkit.DensityHypothesis)
	require.NoError(t, err)

	var result app.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotNil(t, result.Record)
	assert.Equal(t, verdict.ConclusionSupported, result.Record.Conclusion)
	assert.Len(t, result.Record.Results, 4)
	require.NotNil(t, result.FollowUp)
	assert.Equal(t, config.DefaultFollowUp, result.FollowUp.Record.Hypothesis)
}

func TestRun_NoFollowUp(t *testing.T) {
	out, err := execute(t, runCmd, map[string]string{"no-follow-up": "true"}, testkit.DensityHypothesis)
	require.NoError(t, err)

	var result app.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Nil(t, result.FollowUp)
}

func TestRun_SeedIsReproducible(t *testing.T) {
	flags := map[string]string{"seed": "42", "no-follow-up": "true"}
	first, err := execute(t, runCmd, flags, testkit.DensityHypothesis)
	require.NoError(t, err)
	second, err := execute(t, runCmd, flags, testkit.DensityHypothesis)
	require.NoError(t, err)

	var a, b app.CycleResult
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	assert.Equal(t, a.Record.Results, b.Record.Results)
}

func TestRun_Unsupported(t *testing.T) {
	out, err := execute(t, runCmd, nil, "unicorns prefer jazz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unicorns prefer jazz")
	assert.Empty(t, out)
}

func TestRun_MarkdownReportAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle.xlsx")
	out, err := execute(t, runCmd, map[string]string{
		"no-follow-up": "true",
		"report":       "markdown",
		"export":       path,
	}, testkit.DensityHypothesis)
	require.NoError(t, err)

	assert.Contains(t, out, "# Cycle report")
	assert.Contains(t, out, testkit.DensityHypothesis)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRun_UnknownReportFormat(t *testing.T) {
	_, err := execute(t, runCmd, map[string]string{"report": "pdf", "no-follow-up": "true"}, testkit.DensityHypothesis)
	assert.ErrorContains(t, err, "unknown report format")
}

func TestRun_ManyHypotheses(t *testing.T) {
	out, err := execute(t, runCmd, map[string]string{"no-follow-up": "true"},
		testkit.DensityHypothesis, "unicorns prefer jazz")
	assert.ErrorContains(t, err, "1 of 2 cycles failed")

	var outcomes []outcomeJSON
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 2)
	assert.Equal(t, testkit.DensityHypothesis, outcomes[0].Hypothesis)
	assert.Empty(t, outcomes[0].Error)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, verdict.ConclusionSupported, outcomes[0].Result.Record.Conclusion)
	assert.NotEmpty(t, outcomes[1].Error)
}

func TestRun_ExportRejectsManyHypotheses(t *testing.T) {
	dir := t.TempDir()
	for _, flag := range []string{"export", "report"} {
		path := filepath.Join(dir, flag+".out")
		_, err := execute(t, runCmd, map[string]string{"no-follow-up": "true", flag: path},
			testkit.DensityHypothesis, testkit.DensityHypothesis)
		assert.ErrorContains(t, err, "single hypothesis", flag)
		assert.NoFileExists(t, path)
	}
}

func TestInterpret(t *testing.T) {
	out, err := execute(t, interpretCmd, nil, testkit.DensityHypothesis)
	require.NoError(t, err)

	var batch plan.Batch
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Len(t, batch.Specs, 4)
	assert.Equal(t, testkit.DensityHypothesis, batch.Hypothesis)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyze_OrderingChangesVerdict(t *testing.T) {
	path := writeFile(t, "results.csv", "sample_id,ordinal,value\ns_1,1,1\ns_2,2,2\ns_10,10,10\n")

	out, err := execute(t, analyzeCmd, map[string]string{"hypothesis": "h"}, path)
	require.NoError(t, err)
	var lex verdict.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &lex))
	assert.False(t, lex.TrendIncreasing)

	out, err = execute(t, analyzeCmd, map[string]string{"hypothesis": "h", "ordering": "ordinal"}, path)
	require.NoError(t, err)
	var ord verdict.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &ord))
	assert.True(t, ord.TrendIncreasing)
	assert.Equal(t, verdict.ConclusionSupported, ord.Conclusion)
}

func TestAnalyze_JSON(t *testing.T) {
	path := writeFile(t, "results.json", `{"a": 3, "b": 2}`)

	out, err := execute(t, analyzeCmd, map[string]string{"report": "markdown"}, path)
	require.NoError(t, err)
	assert.Contains(t, out, string(verdict.ConclusionNotSupported))
}

func TestAnalyze_Errors(t *testing.T) {
	empty := writeFile(t, "empty.json", `{}`)
	_, err := execute(t, analyzeCmd, nil, empty)
	assert.Error(t, err)

	noOrdinals := writeFile(t, "plain.json", `{"a": 1}`)
	_, err = execute(t, analyzeCmd, map[string]string{"ordering": "ordinal"}, noOrdinals)
	assert.ErrorContains(t, err, "ordinal column")

	_, err = execute(t, analyzeCmd, map[string]string{"ordering": "random"}, noOrdinals)
	assert.ErrorContains(t, err, "unknown ordering")
}
