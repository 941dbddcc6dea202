package trend

import (
	"math"
	"sort"

	"hypocycle/domain/verdict"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minSpearmanSamples is the smallest series with a defined t statistic.
const minSpearmanSamples = 3

// Describe computes descriptive statistics over values taken in sample
// order. It returns nil for an empty series or one holding a non-finite
// value, since those cannot be encoded in the analysis record.
func Describe(values []float64) *verdict.TrendStatistics {
	if len(values) == 0 {
		return nil
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	data := stats.Float64Data(values)

	mean, _ := stats.Mean(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	var stdDev float64
	if len(values) > 1 {
		stdDev, _ = stats.StandardDeviationSample(data)
	}

	out := &verdict.TrendStatistics{
		N:      len(values),
		Mean:   mean,
		StdDev: stdDev,
		Min:    min,
		Max:    max,
	}
	if rho, p, ok := Spearman(values); ok {
		out.SpearmanRho = &rho
		out.SpearmanP = &p
	}
	return out
}

// Spearman correlates values with their position in the series. ok is false
// for fewer than three samples or a constant series.
func Spearman(values []float64) (rho, pValue float64, ok bool) {
	n := len(values)
	if n < minSpearmanSamples {
		return 0, 0, false
	}
	positions := make([]float64, n)
	for i := range positions {
		positions[i] = float64(i + 1)
	}

	rho = stat.Correlation(positions, ranks(values), nil)
	if math.IsNaN(rho) {
		return 0, 0, false
	}
	if math.Abs(rho) >= 1-1e-12 {
		return math.Copysign(1, rho), 0, true
	}
	df := float64(n - 2)
	tStat := rho * math.Sqrt(df/(1-rho*rho))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return rho, 2 * (1 - tDist.CDF(math.Abs(tStat))), true
}

// ranks converts values to 1-based ranks, averaging ties.
func ranks(data []float64) []float64 {
	n := len(data)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return data[idx[i]] < data[idx[j]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && data[idx[j]] == data[idx[i]] {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		i = j
	}
	return out
}
