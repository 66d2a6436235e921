package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Entropy measures how spread a non-negative distribution (a chroma vector, a
// cluster histogram) is. Values are normalized by log(n) so 0 means all mass in
// one bin and 1 means uniform.
type Entropy struct {
	epsilon float64
}

// NewEntropy creates a new entropy calculator
func NewEntropy() *Entropy {
	return &Entropy{epsilon: 1e-12}
}

// Shannon returns the Shannon entropy in nats of values treated as unnormalized
// probabilities. Negative entries are ignored; an all-zero input gives 0.
func (e *Entropy) Shannon(values []float64) float64 {
	probs := e.probabilities(values)
	if probs == nil {
		return 0.0
	}
	return stat.Entropy(probs)
}

// Normalized returns Shannon entropy divided by log(len(values)), in [0,1]
func (e *Entropy) Normalized(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	h := e.Shannon(values) / math.Log(float64(len(values)))
	return math.Max(0, math.Min(1, h))
}

func (e *Entropy) probabilities(values []float64) []float64 {
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total < e.epsilon {
		return nil
	}

	probs := make([]float64, len(values))
	for i, v := range values {
		if v > 0 {
			probs[i] = v / total
		}
	}
	return probs
}
