package ports

import (
	"context"
	"io"

	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
)

// RecordExporter writes a completed cycle to an external format.
type RecordExporter interface {
	Export(ctx context.Context, w io.Writer, specs []spec.SampleSpecification, record *verdict.AnalysisRecord) error
}
