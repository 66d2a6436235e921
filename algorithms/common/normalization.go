package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NormalizationType defines normalization method
type NormalizationType int

const (
	// L2 scales to unit Euclidean length
	L2 NormalizationType = iota
	// Peak scales so the largest absolute value is 1
	Peak
	// Probability scales non-negative values to sum to 1
	Probability
)

const normEpsilon = 1e-12

// Normalizer provides the vector normalizations used by the similarity and
// chord engines. Zero vectors normalize to zero vectors.
type Normalizer struct {
	method NormalizationType
}

// NewNormalizer creates a new normalizer
func NewNormalizer(method NormalizationType) *Normalizer {
	return &Normalizer{
		method: method,
	}
}

// Normalize returns a normalized copy of v
func (n *Normalizer) Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n.NormalizeInPlace(out)
	return out
}

// NormalizeInPlace normalizes v in place
func (n *Normalizer) NormalizeInPlace(v []float64) {
	if len(v) == 0 {
		return
	}

	var scale float64
	switch n.method {
	case L2:
		scale = floats.Norm(v, 2)
	case Peak:
		scale = floats.Norm(v, math.Inf(1))
	case Probability:
		for _, x := range v {
			if x > 0 {
				scale += x
			}
		}
	}

	if scale < normEpsilon || !IsFinite(scale) {
		for i := range v {
			v[i] = 0
		}
		return
	}
	floats.Scale(1.0/scale, v)
}

// L2Normalize returns a unit-length copy of v (zeros for a zero vector)
func L2Normalize(v []float64) []float64 {
	return NewNormalizer(L2).Normalize(v)
}

// PeakNormalize returns a copy of v scaled so its largest magnitude is 1
func PeakNormalize(v []float64) []float64 {
	return NewNormalizer(Peak).Normalize(v)
}

// CosineSimilarity returns the cosine of the angle between a and b. Empty,
// mismatched or zero-length vectors give 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na < normEpsilon || nb < normEpsilon {
		return 0.0
	}

	sim := floats.Dot(a, b) / (na * nb)
	if !IsFinite(sim) {
		return 0.0
	}
	return Clamp(sim, -1, 1)
}

// Dot is a length-checked dot product; mismatched lengths give 0
func Dot(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}
	return floats.Dot(a, b)
}

// Closeness maps two scalars in [0, 1] to 1 - min(1, |a-b|)
func Closeness(a, b float64) float64 {
	return 1.0 - math.Min(1.0, math.Abs(a-b))
}
