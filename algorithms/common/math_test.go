package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianAndMAD(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	// |x - 3| = {2, 1, 0, 1, 97} -> median 1
	assert.Equal(t, 1.0, MAD([]float64{1, 2, 3, 4, 100}))
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	data := []float64{5, 1, 4}
	Median(data)
	assert.Equal(t, []float64{5, 1, 4}, data)
}

func TestMovingAverageKeepsLength(t *testing.T) {
	out := MovingAverage([]float64{0, 3, 0, 3}, 3)
	assert.Len(t, out, 4)
	assert.InDelta(t, 1.5, out[0], 1e-12)
	assert.InDelta(t, 1.0, out[1], 1e-12)
	assert.InDelta(t, 2.0, out[2], 1e-12)
}

func TestMedianFilterRemovesSpike(t *testing.T) {
	out := MedianFilter([]float64{1, 1, 9, 1, 1}, 3)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, out)
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2.0, Slope([]float64{1, 3, 5, 7}), 1e-9)
	assert.Equal(t, 0.0, Slope([]float64{4}))
	assert.InDelta(t, 0.0, Slope([]float64{2, 2, 2}), 1e-12)
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float64{0.9, 0.5, 0.1, 0}, 0.1)
	total := 0.0
	for _, p := range probs {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, probs[0], probs[1])

	uniform := Softmax([]float64{0, 0}, 0.1)
	assert.InDelta(t, 0.5, uniform[0], 1e-12)
}

func TestSanitize(t *testing.T) {
	data := []float64{1, math.NaN(), math.Inf(1), -2}
	assert.Equal(t, 2, Sanitize(data))
	assert.Equal(t, []float64{1, 0, 0, -2}, data)
}

func TestCircularDistance(t *testing.T) {
	assert.Equal(t, 1, CircularDistance(0, 11, 12))
	assert.Equal(t, 5, CircularDistance(0, 7, 12))
	assert.Equal(t, 6, CircularDistance(3, 9, 12))
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 0, 2, 0.5}
	b := []float64{0.2, 1, 0, 3}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-12)
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	assert.Equal(t, 0.0, CosineSimilarity(a, make([]float64, 4)))
	assert.Equal(t, 0.0, CosineSimilarity(a, []float64{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestNormalizers(t *testing.T) {
	unit := L2Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, unit[0], 1e-12)
	assert.InDelta(t, 0.8, unit[1], 1e-12)

	assert.Equal(t, []float64{0, 0}, L2Normalize([]float64{0, 0}))
	assert.Equal(t, []float64{-1, 0.5}, PeakNormalize([]float64{-4, 2}))

	probs := NewNormalizer(Probability).Normalize([]float64{1, 3})
	assert.Equal(t, []float64{0.25, 0.75}, probs)
}

func TestCloseness(t *testing.T) {
	assert.Equal(t, 1.0, Closeness(0.4, 0.4))
	assert.InDelta(t, 0.7, Closeness(0.2, 0.5), 1e-12)
	assert.Equal(t, 0.0, Closeness(0, 3))
}
