package trend

import (
	"sort"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/verdict"
)

// Analyzer decides whether a result set is monotonically non-decreasing
// under a sample ordering and derives the conclusion and next steps.
type Analyzer struct {
	ordering verdict.Ordering
	ordinals map[core.SampleID]int
	now      func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOrdinals orders samples by an explicit ordinal instead of by id.
// Samples without an ordinal sort after those with one, by id.
func WithOrdinals(ordinals map[core.SampleID]int) Option {
	return func(a *Analyzer) {
		a.ordering = verdict.OrderingOrdinal
		a.ordinals = ordinals
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer. The default ordering is lexicographic by
// sample id.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{ordering: verdict.OrderingLexicographic, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds the analysis record for a result set. It fails with
// EmptyResultSet when there is nothing to analyze; a single entry is
// vacuously increasing.
func (a *Analyzer) Analyze(hypothesis string, results verdict.ResultSet) (*verdict.AnalysisRecord, error) {
	if len(results) == 0 {
		return nil, &core.EmptyResultSetError{Hypothesis: hypothesis}
	}

	ids := a.order(results)
	values := make([]float64, len(ids))
	for i, id := range ids {
		values[i] = results[id]
	}
	increasing := IsNonDecreasing(values)

	return &verdict.AnalysisRecord{
		Hypothesis:      hypothesis,
		Results:         results.Clone(),
		TrendIncreasing: increasing,
		Conclusion:      verdict.ConclusionFor(increasing),
		NextSteps:       verdict.NextStepsFor(increasing),
		Ordering:        a.ordering,
		OrderedIDs:      ids,
		Statistics:      Describe(values),
		AnalyzedAt:      a.now().UTC(),
	}, nil
}

func (a *Analyzer) order(results verdict.ResultSet) []core.SampleID {
	ids := results.IDs()
	if a.ordering != verdict.OrderingOrdinal {
		return ids
	}
	sort.SliceStable(ids, func(i, j int) bool {
		oi, iok := a.ordinals[ids[i]]
		oj, jok := a.ordinals[ids[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return false
		}
	})
	return ids
}

// IsNonDecreasing reports whether every adjacent pair satisfies
// earlier <= later. Ties are not violations; a pair involving NaN is.
func IsNonDecreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if !(values[i-1] <= values[i]) {
			return false
		}
	}
	return true
}
