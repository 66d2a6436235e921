package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness.
// Every function has a defined value for empty or degenerate input; callers
// never need to guard against panics.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Median returns the median of data without modifying it
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}

// MAD returns the median absolute deviation around the median
func MAD(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	med := Median(data)
	deviations := make([]float64, len(data))
	for i, v := range data {
		deviations[i] = math.Abs(v - med)
	}
	return Median(deviations)
}

// Max returns the largest value, or 0 for empty input
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// ArgMax returns the index of the largest value, or -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// MovingAverage calculates a centered moving average. The window is clipped at
// the edges so the output keeps the input length and peak positions.
func MovingAverage(data []float64, windowSize int) []float64 {
	if len(data) == 0 || windowSize <= 1 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}

	half := windowSize / 2
	result := make([]float64, len(data))
	for i := range data {
		start := max(0, i-half)
		end := min(len(data), i+half+1)
		result[i] = floats.Sum(data[start:end]) / float64(end-start)
	}

	return result
}

// MedianFilter applies median filtering with given window size
func MedianFilter(data []float64, windowSize int) []float64 {
	if len(data) == 0 || windowSize <= 1 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}

	if windowSize > len(data) {
		windowSize = len(data)
	}

	result := make([]float64, len(data))
	halfWindow := windowSize / 2

	for i := range data {
		start := max(0, i-halfWindow)
		end := min(len(data), i+halfWindow+1)
		result[i] = Median(data[start:end])
	}

	return result
}

// Slope fits y against its index and returns the regression slope. Fewer
// than two points, or a constant series, give 0.
func Slope(y []float64) float64 {
	if len(y) < 2 {
		return 0.0
	}

	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}

	_, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0.0
	}
	return beta
}

// Clamp restricts value to [lo, hi]
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Clamp01 restricts value to [0, 1]; NaN maps to 0
func Clamp01(value float64) float64 {
	if math.IsNaN(value) {
		return 0.0
	}
	return Clamp(value, 0, 1)
}

// Gaussian evaluates an unnormalized Gaussian bump at x
func Gaussian(x, mu, sigma float64) float64 {
	if sigma <= 0 {
		if x == mu {
			return 1.0
		}
		return 0.0
	}
	d := (x - mu) / sigma
	return math.Exp(-0.5 * d * d)
}

// Softmax converts scores into a probability distribution. A lower temperature
// gives a more sharply peaked distribution. The max score is subtracted first
// so large scores cannot overflow.
func Softmax(scores []float64, temperature float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	if temperature <= 0 {
		temperature = 1.0
	}

	maxScore := floats.Max(scores)
	total := 0.0
	for i, s := range scores {
		out[i] = math.Exp((s - maxScore) / temperature)
		total += out[i]
	}

	if total <= 0 || math.IsNaN(total) {
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i] = uniform
		}
		return out
	}

	floats.Scale(1.0/total, out)
	return out
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Sanitize replaces NaN and infinite values with 0 in place and returns how
// many values were replaced.
func Sanitize(data []float64) int {
	replaced := 0
	for i, v := range data {
		if !IsFinite(v) {
			data[i] = 0
			replaced++
		}
	}
	return replaced
}

// CircularDistance returns the shortest distance between two pitch classes
// (or any values modulo n).
func CircularDistance(a, b, n int) int {
	d := ((a-b)%n + n) % n
	if n-d < d {
		return n - d
	}
	return d
}
