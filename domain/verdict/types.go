package verdict

import (
	"sort"
	"time"

	"hypocycle/domain/core"
)

// Conclusion is the human-readable outcome of a cycle.
type Conclusion string

const (
	ConclusionSupported    Conclusion = "Hypothesis supported"
	ConclusionNotSupported Conclusion = "Hypothesis not supported"
)

// Ordering names the key used to sequence samples before the trend check.
type Ordering string

const (
	OrderingLexicographic Ordering = "lexicographic"
	OrderingOrdinal       Ordering = "ordinal"
)

var (
	supportedNextSteps = []string{
		"Test mechanism: contact inhibition vs nutrient depletion",
		"Validate with different cell lines",
		"Test temporal dynamics of p53 accumulation",
	}
	notSupportedNextSteps = []string{
		"Re-examine experimental conditions",
		"Test alternative hypotheses",
	}
)

// ConclusionFor maps the trend verdict to its conclusion.
func ConclusionFor(increasing bool) Conclusion {
	if increasing {
		return ConclusionSupported
	}
	return ConclusionNotSupported
}

// NextStepsFor returns the recommended follow-up actions for a verdict. The
// list depends on nothing but the verdict; callers get their own copy.
func NextStepsFor(increasing bool) []string {
	if increasing {
		return append([]string(nil), supportedNextSteps...)
	}
	return append([]string(nil), notSupportedNextSteps...)
}

// ResultSet maps sample ids to a single scalar measurement.
type ResultSet map[core.SampleID]float64

// IDs returns the sample ids in lexicographic order.
func (r ResultSet) IDs() []core.SampleID {
	ids := make([]core.SampleID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy.
func (r ResultSet) Clone() ResultSet {
	out := make(ResultSet, len(r))
	for id, v := range r {
		out[id] = v
	}
	return out
}

// TrendStatistics are descriptive numbers reported alongside the verdict.
// They never influence TrendIncreasing, Conclusion or NextSteps.
type TrendStatistics struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`

	// Spearman rank correlation of measurement against sample order; nil
	// when fewer than three samples or a constant series.
	SpearmanRho *float64 `json:"spearman_rho,omitempty"`
	SpearmanP   *float64 `json:"spearman_p,omitempty"`
}

// AnalysisRecord is the terminal artifact of one cycle.
type AnalysisRecord struct {
	CycleID         core.CycleID     `json:"cycle_id,omitempty"`
	Hypothesis      string           `json:"hypothesis"`
	Results         ResultSet        `json:"results"`
	TrendIncreasing bool             `json:"trend_increasing"`
	Conclusion      Conclusion       `json:"conclusion"`
	NextSteps       []string         `json:"next_steps"`
	Ordering        Ordering         `json:"ordering,omitempty"`
	OrderedIDs      []core.SampleID  `json:"ordered_ids,omitempty"`
	Statistics      *TrendStatistics `json:"statistics,omitempty"`
	Partial         bool             `json:"partial,omitempty"`
	AnalyzedAt      time.Time        `json:"analyzed_at"`
}

// Supported reports whether the record supports its hypothesis.
func (r *AnalysisRecord) Supported() bool {
	return r.Conclusion == ConclusionSupported
}
