package ports

import (
	"context"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
)

// ExecuteOptions tune a single execution call.
type ExecuteOptions struct {
	// AllOrNothing discards every result when any sample fails.
	AllOrNothing bool
}

// ExecutionReport is the outcome of one batch. Results are keyed by sample
// id; Errors names every sample that produced no result.
type ExecutionReport struct {
	Strategy string                 `json:"strategy"` // "simulated" | "live"
	Results  verdict.ResultSet      `json:"results"`
	Errors   []*core.ExecutionError `json:"-"`
}

// Failed reports whether any sample failed.
func (r *ExecutionReport) Failed() bool {
	return len(r.Errors) > 0
}

// Err joins the per-sample failures, or returns nil.
func (r *ExecutionReport) Err() error {
	return core.JoinExecutionErrors(r.Errors)
}

// ExecutorPort turns sample specifications into measurements. The returned
// error is reserved for batch-level failures (schema version mismatch,
// cancellation); per-sample failures go in the report.
type ExecutorPort interface {
	Execute(ctx context.Context, specs []spec.SampleSpecification, opts ExecuteOptions) (*ExecutionReport, error)
}

// InstrumentPort is the laboratory automation collaborator behind the live
// strategy. Failures maps sample ids to a reason.
type InstrumentPort interface {
	Measure(ctx context.Context, specs []spec.SampleSpecification) (results verdict.ResultSet, failures map[core.SampleID]string, err error)
}
