package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/internal/errors"
	"hypocycle/internal/testkit"
	"hypocycle/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLab answers with density/1000 for every sample except those listed in
// fail (reported as errors) and drop (silently omitted).
func fakeLab(t *testing.T, fail, drop map[core.SampleID]bool, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			atomic.AddInt32(requests, 1)
		}
		assert.Equal(t, MeasurementsPath, r.URL.Path)

		var req MeasurementRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.SchemaVersion != spec.SchemaVersion {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ErrorResponse{ //nolint:errcheck
				Code: "SCHEMA_VIOLATION", Field: "schema_version", Expected: spec.SchemaVersion, Got: req.SchemaVersion,
			})
			return
		}

		resp := MeasurementResponse{Results: map[core.SampleID]float64{}, Errors: map[core.SampleID]string{}}
		for _, s := range req.Samples {
			switch {
			case fail[s.SampleID]:
				resp.Errors[s.SampleID] = "imaging failed: focus lost"
			case drop[s.SampleID]:
			default:
				resp.Results[s.SampleID] = s.BiologicalContext.CellDensity / 1000
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
}

func TestExecute_AllMeasured(t *testing.T) {
	var requests int32
	srv := fakeLab(t, nil, nil, &requests)
	defer srv.Close()

	exec := NewExecutor(NewClient(srv.URL, nil), Config{Timeout: 5 * time.Second, BatchSize: 3}, nil)
	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Equal(t, Strategy, report.Strategy)
	assert.Equal(t, 25.0, report.Results["p53_density_exp_1"])
	assert.Equal(t, 100.0, report.Results["p53_density_exp_4"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "4 samples in chunks of 3")
}

func TestExecute_PerSampleFailures(t *testing.T) {
	srv := fakeLab(t,
		map[core.SampleID]bool{"p53_density_exp_2": true},
		map[core.SampleID]bool{"p53_density_exp_4": true},
		nil)
	defer srv.Close()

	exec := NewExecutor(NewClient(srv.URL, nil), Config{Timeout: 5 * time.Second}, nil)
	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	require.NoError(t, err)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, core.SampleID("p53_density_exp_2"), report.Errors[0].SampleID)
	assert.Equal(t, "imaging failed: focus lost", report.Errors[0].Reason)
	assert.Equal(t, core.SampleID("p53_density_exp_4"), report.Errors[1].SampleID)
	assert.Equal(t, "missing instrument response", report.Errors[1].Reason)
	assert.Len(t, report.Results, 2)

	report, err = exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{AllOrNothing: true})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Len(t, report.Errors, 2)
}

func TestExecute_TimeoutBecomesExecutionError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	exec := NewExecutor(NewClient(srv.URL, nil), Config{Timeout: 50 * time.Millisecond}, nil)
	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	require.NoError(t, err)

	require.Len(t, report.Errors, 4)
	for _, e := range report.Errors {
		assert.Equal(t, "instrument timeout", e.Reason)
		assert.True(t, core.IsExecutionError(e))
	}
	assert.Empty(t, report.Results)
}

func TestExecute_InstrumentUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := NewClient(srv.URL, nil).Measure(context.Background(), testkit.DensityBatch())
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Contains(t, err.Error(), "http 503")

	exec := NewExecutor(NewClient(srv.URL, nil), Config{Timeout: time.Second}, nil)
	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 4)
	for _, e := range report.Errors {
		assert.Equal(t, "instrument unavailable", e.Reason)
		assert.Equal(t, errors.CodeExternalService, errors.Classify(e.Cause))
	}
}

func TestExecute_InstrumentRejectsVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{ //nolint:errcheck
			Code: "SCHEMA_VIOLATION", Field: "schema_version", Expected: "2.0.0", Got: spec.SchemaVersion,
		})
	}))
	defer srv.Close()

	exec := NewExecutor(NewClient(srv.URL, nil), Config{Timeout: time.Second}, nil)
	report, err := exec.Execute(context.Background(), testkit.DensityBatch(), ports.ExecuteOptions{})
	assert.Nil(t, report)

	var sv *core.SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "2.0.0", sv.Expected)
}

func TestExecute_LocalVersionCheck(t *testing.T) {
	var requests int32
	srv := fakeLab(t, nil, nil, &requests)
	defer srv.Close()

	batch := testkit.DensityBatch()
	batch[0].SchemaVersion = "0.9.0"

	exec := NewExecutor(NewClient(srv.URL, nil), Config{}, nil)
	_, err := exec.Execute(context.Background(), batch, ports.ExecuteOptions{})
	assert.True(t, core.IsSchemaViolation(err))
	assert.Zero(t, atomic.LoadInt32(&requests))
}

func TestExecute_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(NewClient("http://127.0.0.1:1", nil), Config{}, nil)
	_, err := exec.Execute(ctx, testkit.DensityBatch(), ports.ExecuteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunks(t *testing.T) {
	batch := testkit.DensityBatch()
	assert.Len(t, chunks(batch, 0), 1)
	assert.Len(t, chunks(batch, 4), 1)
	got := chunks(batch, 3)
	require.Len(t, got, 2)
	assert.Len(t, got[1], 1)
}
