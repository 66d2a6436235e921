package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PercentileMethod represents different methods for calculating percentiles
type PercentileMethod int

const (
	// Linear interpolation between closest ranks (R-7)
	Linear PercentileMethod = iota

	// Empirical CDF inverse, no interpolation (R-1)
	Lower
)

// RobustSummary holds median-based location and spread of a window
type RobustSummary struct {
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"`
	Count  int     `json:"count"`
}

// Percentiles implements percentile and median/MAD estimates used for
// adaptive thresholds on novelty curves.
//
// References:
//   - Hyndman, R.J., Fan, Y. (1996). "Sample Quantiles in Statistical Packages"
//     The American Statistician, 50(4), 361-365
//   - Hampel, F.R. (1974). "The Influence Curve and its Role in Robust Estimation"
type Percentiles struct {
	method PercentileMethod
}

// NewPercentiles creates a new percentile analyzer with linear interpolation method
func NewPercentiles() *Percentiles {
	return &Percentiles{method: Linear}
}

// NewPercentilesWithMethod creates a percentile analyzer with specified method
func NewPercentilesWithMethod(method PercentileMethod) *Percentiles {
	return &Percentiles{method: method}
}

// Percentile returns the q-th quantile (q in [0,1]) of data. Empty input gives 0.
func (p *Percentiles) Percentile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return p.percentileSorted(sorted, q)
}

func (p *Percentiles) percentileSorted(sorted []float64, q float64) float64 {
	q = math.Max(0, math.Min(1, q))

	if p.method == Lower {
		return stat.Quantile(q, stat.Empirical, sorted, nil)
	}

	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize computes the median and median absolute deviation of data
func (p *Percentiles) Summarize(data []float64) RobustSummary {
	if len(data) == 0 {
		return RobustSummary{}
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	median := p.percentileSorted(sorted, 0.5)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)

	return RobustSummary{
		Median: median,
		MAD:    p.percentileSorted(deviations, 0.5),
		Count:  len(data),
	}
}

// Local summarizes data[center-halfWidth : center+halfWidth], clipped to the
// slice bounds.
func (p *Percentiles) Local(data []float64, center, halfWidth int) RobustSummary {
	if len(data) == 0 {
		return RobustSummary{}
	}
	start := max(0, center-halfWidth)
	end := min(len(data), center+halfWidth+1)
	if start >= end {
		return RobustSummary{}
	}
	return p.Summarize(data[start:end])
}
