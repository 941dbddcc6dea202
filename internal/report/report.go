// Package report renders analysis records as Markdown and HTML.
package report

import (
	"fmt"
	"strings"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders a record. specs are optional; when given, the sample
// table shows each sample's ordinal and swept parameter.
func Markdown(record *verdict.AnalysisRecord, specs []spec.SampleSpecification) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Cycle report\n\n")
	fmt.Fprintf(&b, "**Hypothesis:** %s\n\n", escape(record.Hypothesis))
	if !record.CycleID.IsEmpty() {
		fmt.Fprintf(&b, "**Cycle:** `%s`\n\n", record.CycleID)
	}
	if !record.AnalyzedAt.IsZero() {
		fmt.Fprintf(&b, "**Analyzed:** %s\n\n", record.AnalyzedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}

	fmt.Fprintf(&b, "## Conclusion\n\n")
	fmt.Fprintf(&b, "%s (trend increasing: %t, ordering: %s)\n\n", record.Conclusion, record.TrendIncreasing, orderingOf(record))
	if record.Partial {
		fmt.Fprintf(&b, "> Partial result: some samples failed and were excluded from the analysis.\n\n")
	}

	writeSamples(&b, record, specs)
	writeStatistics(&b, record.Statistics)

	fmt.Fprintf(&b, "## Next steps\n\n")
	for i, step := range record.NextSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, escape(step))
	}
	return []byte(b.String())
}

// HTML renders the Markdown report as an HTML fragment.
func HTML(record *verdict.AnalysisRecord, specs []spec.SampleSpecification) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.ToHTML(Markdown(record, specs), p, renderer)
}

func writeSamples(b *strings.Builder, record *verdict.AnalysisRecord, specs []spec.SampleSpecification) {
	ids := record.OrderedIDs
	if len(ids) == 0 {
		ids = record.Results.IDs()
	}

	byID := make(map[core.SampleID]spec.SampleSpecification, len(specs))
	for _, s := range specs {
		byID[s.SampleID] = s
	}
	varying := spec.VaryingFields(specs)

	fmt.Fprintf(b, "## Samples\n\n")
	if len(varying) > 0 {
		fmt.Fprintf(b, "| # | Sample | %s | Measurement |\n|---|---|---|---|\n", varying[0])
	} else {
		fmt.Fprintf(b, "| # | Sample | Measurement |\n|---|---|---|\n")
	}
	for i, id := range ids {
		value := fmt.Sprintf("%.4g", record.Results[id])
		if len(varying) == 0 {
			fmt.Fprintf(b, "| %d | %s | %s |\n", i+1, id, value)
			continue
		}
		param := "-"
		if s, ok := byID[id]; ok {
			if v, err := s.Parameter(varying[0]); err == nil {
				param = fmt.Sprintf("%g", v)
			}
		}
		fmt.Fprintf(b, "| %d | %s | %s | %s |\n", i+1, id, param, value)
	}
	b.WriteString("\n")
}

func writeStatistics(b *strings.Builder, st *verdict.TrendStatistics) {
	if st == nil {
		return
	}
	fmt.Fprintf(b, "## Statistics\n\n")
	fmt.Fprintf(b, "| n | mean | std dev | min | max |\n|---|---|---|---|---|\n")
	fmt.Fprintf(b, "| %d | %.4g | %.4g | %.4g | %.4g |\n\n", st.N, st.Mean, st.StdDev, st.Min, st.Max)
	if st.SpearmanRho != nil && st.SpearmanP != nil {
		fmt.Fprintf(b, "Spearman rank correlation with sample order: rho = %.3f, p = %.3g\n\n", *st.SpearmanRho, *st.SpearmanP)
	}
}

func orderingOf(record *verdict.AnalysisRecord) verdict.Ordering {
	if record.Ordering == "" {
		return verdict.OrderingLexicographic
	}
	return record.Ordering
}

var mdEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mdEscaper.Replace(s)
}
