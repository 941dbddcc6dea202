package excel

import (
	"context"
	"fmt"
	"io"
	"strings"

	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/ports"

	"github.com/xuri/excelize/v2"
)

// Sheet names written by the exporter
const (
	SheetSpecs   = "Specs"
	SheetResults = "Results"
	SheetVerdict = "Verdict"
)

// Exporter writes a completed cycle as an XLSX workbook with one sheet each
// for the specs, the measurements and the verdict.
type Exporter struct{}

var _ ports.RecordExporter = (*Exporter)(nil)

// NewExporter creates a workbook exporter
func NewExporter() *Exporter {
	return &Exporter{}
}

var specHeaders = []interface{}{
	"sample_id", "ordinal", "schema_version",
	"cell_line", "passage_number", "culture_age", "cell_density",
	"media_type", "media_supplements", "co2_percentage", "temperature_celsius",
	"compounds", "fixation_method", "fixation_duration", "permeabilization", "blocking_agent",
	"primary_antibodies", "secondary_antibodies", "nuclear_stain",
	"microscope_type", "objective_magnification", "channels",
}

// Export writes the workbook to w. specs may be nil when only the record is
// known.
func (e *Exporter) Export(ctx context.Context, w io.Writer, specs []spec.SampleSpecification, record *verdict.AnalysisRecord) error {
	if record == nil {
		return fmt.Errorf("export: nil analysis record")
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSpecs); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSpecs(f, specs, bold); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetResults); err != nil {
		return fmt.Errorf("create results sheet: %w", err)
	}
	if err := writeResults(f, specs, record, bold); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetVerdict); err != nil {
		return fmt.Errorf("create verdict sheet: %w", err)
	}
	if err := writeVerdict(f, record, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSpecs(f *excelize.File, specs []spec.SampleSpecification, header int) error {
	if err := f.SetSheetRow(SheetSpecs, "A1", &specHeaders); err != nil {
		return fmt.Errorf("write spec headers: %w", err)
	}
	if err := f.SetRowStyle(SheetSpecs, 1, 1, header); err != nil {
		return fmt.Errorf("style spec headers: %w", err)
	}

	for i, s := range specs {
		row := []interface{}{
			s.SampleID.String(), s.Ordinal, s.SchemaVersion,
			s.BiologicalContext.CellLine, s.BiologicalContext.PassageNumber,
			s.BiologicalContext.CultureAge, s.BiologicalContext.CellDensity,
			s.CultureConditions.MediaType, strings.Join(s.CultureConditions.MediaSupplements, "; "),
			s.CultureConditions.CO2Percentage, s.CultureConditions.TemperatureCelsius,
			compounds(s.Treatments.Compounds),
			s.SamplePreparation.FixationMethod, s.SamplePreparation.FixationDuration,
			s.SamplePreparation.Permeabilization, s.SamplePreparation.BlockingAgent,
			primaries(s.StainingProtocol.PrimaryAntibodies),
			secondaries(s.StainingProtocol.SecondaryAntibodies),
			s.StainingProtocol.NuclearStain,
			s.ImagingParameters.MicroscopeType, s.ImagingParameters.ObjectiveMagnification,
			channels(s.ImagingParameters.Channels),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSpecs, cell, &row); err != nil {
			return fmt.Errorf("write spec %s: %w", s.SampleID, err)
		}
	}
	return f.SetColWidth(SheetSpecs, "A", "A", 22)
}

// writeResults lists measurements in the analyzer's order. The value column
// header matches what ReadResults expects.
func writeResults(f *excelize.File, specs []spec.SampleSpecification, record *verdict.AnalysisRecord, header int) error {
	headers := []interface{}{ColumnSampleID, ColumnOrdinal, ColumnValue}
	if err := f.SetSheetRow(SheetResults, "A1", &headers); err != nil {
		return fmt.Errorf("write result headers: %w", err)
	}
	if err := f.SetRowStyle(SheetResults, 1, 1, header); err != nil {
		return fmt.Errorf("style result headers: %w", err)
	}

	ordinals := spec.Ordinals(specs)
	ids := record.OrderedIDs
	if len(ids) == 0 {
		ids = record.Results.IDs()
	}
	for i, id := range ids {
		var ordinal interface{}
		if n, ok := ordinals[id]; ok {
			ordinal = n
		}
		row := []interface{}{id.String(), ordinal, record.Results[id]}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetResults, cell, &row); err != nil {
			return fmt.Errorf("write result %s: %w", id, err)
		}
	}
	return f.SetColWidth(SheetResults, "A", "A", 22)
}

func writeVerdict(f *excelize.File, record *verdict.AnalysisRecord, header int) error {
	rows := [][]interface{}{
		{"field", "value"},
		{"cycle_id", record.CycleID.String()},
		{"hypothesis", record.Hypothesis},
		{"trend_increasing", record.TrendIncreasing},
		{"conclusion", string(record.Conclusion)},
		{"ordering", string(record.Ordering)},
		{"partial", record.Partial},
		{"analyzed_at", record.AnalyzedAt.Format("2006-01-02T15:04:05Z07:00")},
	}
	if st := record.Statistics; st != nil {
		rows = append(rows,
			[]interface{}{"n", st.N},
			[]interface{}{"mean", st.Mean},
			[]interface{}{"std_dev", st.StdDev},
			[]interface{}{"min", st.Min},
			[]interface{}{"max", st.Max},
		)
		if st.SpearmanRho != nil {
			rows = append(rows, []interface{}{"spearman_rho", *st.SpearmanRho})
		}
		if st.SpearmanP != nil {
			rows = append(rows, []interface{}{"spearman_p", *st.SpearmanP})
		}
	}
	for i, step := range record.NextSteps {
		rows = append(rows, []interface{}{fmt.Sprintf("next_step_%d", i+1), step})
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetVerdict, cell, &rows[i]); err != nil {
			return fmt.Errorf("write verdict row: %w", err)
		}
	}
	if err := f.SetRowStyle(SheetVerdict, 1, 1, header); err != nil {
		return fmt.Errorf("style verdict headers: %w", err)
	}
	return f.SetColWidth(SheetVerdict, "A", "B", 40)
}

func compounds(in []spec.Compound) string {
	parts := make([]string, 0, len(in))
	for _, c := range in {
		parts = append(parts, fmt.Sprintf("%s %g %s (%d min)", c.Name, c.Concentration, c.Unit, c.DurationMinutes))
	}
	return strings.Join(parts, "; ")
}

func primaries(in []spec.PrimaryAntibody) string {
	parts := make([]string, 0, len(in))
	for _, a := range in {
		parts = append(parts, fmt.Sprintf("%s %s 1:%g", a.Target, a.Clone, a.Concentration))
	}
	return strings.Join(parts, "; ")
}

func secondaries(in []spec.SecondaryAntibody) string {
	parts := make([]string, 0, len(in))
	for _, a := range in {
		parts = append(parts, fmt.Sprintf("%s %g", a.Fluorophore, a.Concentration))
	}
	return strings.Join(parts, "; ")
}

func channels(in []spec.Channel) string {
	parts := make([]string, 0, len(in))
	for _, c := range in {
		parts = append(parts, fmt.Sprintf("%s %g/%g", c.Name, c.Excitation, c.Emission))
	}
	return strings.Join(parts, "; ")
}
