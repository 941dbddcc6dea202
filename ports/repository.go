package ports

import (
	"context"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
)

// RecordRepository is the optional persistence collaborator. The pipeline
// runs unchanged when none is configured.
type RecordRepository interface {
	// SaveRecord stores an analysis record under its cycle id, replacing any
	// previous record for the same cycle
	SaveRecord(ctx context.Context, record *verdict.AnalysisRecord) error

	// GetRecord retrieves a record by cycle id
	GetRecord(ctx context.Context, id core.CycleID) (*verdict.AnalysisRecord, error)

	// ListRecords returns the most recent records first, optionally limited
	ListRecords(ctx context.Context, limit int) ([]*verdict.AnalysisRecord, error)

	// SaveBatch stores the specs of a cycle, namespaced by cycle id
	SaveBatch(ctx context.Context, cycle core.CycleID, specs []spec.SampleSpecification) error

	// GetBatch returns the specs stored for a cycle in batch order
	GetBatch(ctx context.Context, cycle core.CycleID) ([]spec.SampleSpecification, error)
}
