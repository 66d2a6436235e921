package chroma

import (
	"strings"

	"github.com/RyanBlaney/sonido-forma/algorithms/stats"
	"gonum.org/v1/gonum/floats"
)

// NumPitchClasses is the chroma vector length
const NumPitchClasses = 12

// PitchClassNames are the sharp spellings used for chord and key labels
var PitchClassNames = [NumPitchClasses]string{
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

var flatSpellings = map[string]int{
	"DB": 1, "EB": 3, "GB": 6, "AB": 8, "BB": 10, "CB": 11, "FB": 4,
	"E#": 5, "B#": 0,
}

// PitchClassName returns the sharp spelling for a pitch class (any integer,
// reduced modulo 12).
func PitchClassName(pc int) string {
	return PitchClassNames[((pc%NumPitchClasses)+NumPitchClasses)%NumPitchClasses]
}

// ParsePitchClass accepts sharp or flat spellings ("C#", "Db", "bb") and
// returns the pitch class.
func ParsePitchClass(name string) (int, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return 0, false
	}
	for i, n := range PitchClassNames {
		if n == upper {
			return i, true
		}
	}
	if pc, ok := flatSpellings[upper]; ok {
		return pc, true
	}
	return 0, false
}

// ChromaVectorAnalyzer provides utilities for chroma vector analysis
type ChromaVectorAnalyzer struct {
	entropy *stats.Entropy
}

// NewChromaVectorAnalyzer creates a new chroma vector analyzer
func NewChromaVectorAnalyzer() *ChromaVectorAnalyzer {
	return &ChromaVectorAnalyzer{
		entropy: stats.NewEntropy(),
	}
}

// Average returns the element-wise mean of vectors[start:end]. Vectors with
// the wrong length are skipped; an empty range gives a zero vector.
func (cva *ChromaVectorAnalyzer) Average(vectors [][]float64, start, end int) []float64 {
	out := make([]float64, NumPitchClasses)
	start = max(0, start)
	end = min(len(vectors), end)

	count := 0
	for i := start; i < end; i++ {
		if len(vectors[i]) != NumPitchClasses {
			continue
		}
		floats.Add(out, vectors[i])
		count++
	}
	if count > 0 {
		floats.Scale(1.0/float64(count), out)
	}
	return out
}

// FindDominantChroma finds the strongest pitch class. A zero vector returns
// (-1, 0).
func (cva *ChromaVectorAnalyzer) FindDominantChroma(values []float64) (int, float64) {
	maxVal := 0.0
	maxIdx := -1

	for i, val := range values {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	return maxIdx, maxVal
}

// Entropy returns the normalized Shannon entropy of the vector (0 = single
// pitch class, 1 = flat noise).
func (cva *ChromaVectorAnalyzer) Entropy(values []float64) float64 {
	return cva.entropy.Normalized(values)
}

// CircularShift rotates a chroma vector by shift semitones, so that
// out[(i+shift) mod 12] = values[i].
func (cva *ChromaVectorAnalyzer) CircularShift(values []float64, shift int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for i, v := range values {
		out[((i+shift)%n+n)%n] = v
	}
	return out
}

// Energy returns the sum of positive chroma values
func (cva *ChromaVectorAnalyzer) Energy(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	return total
}
