package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileLinear(t *testing.T) {
	p := NewPercentiles()
	data := []float64{4, 1, 3, 2}

	assert.Equal(t, 1.0, p.Percentile(data, 0))
	assert.Equal(t, 4.0, p.Percentile(data, 1))
	assert.InDelta(t, 2.5, p.Percentile(data, 0.5), 1e-12)
	assert.Equal(t, 0.0, p.Percentile(nil, 0.5))
}

func TestSummarize(t *testing.T) {
	summary := NewPercentiles().Summarize([]float64{1, 2, 3, 4, 100})
	assert.Equal(t, 3.0, summary.Median)
	assert.Equal(t, 1.0, summary.MAD)
	assert.Equal(t, 5, summary.Count)
}

func TestLocalClipsWindow(t *testing.T) {
	p := NewPercentiles()
	data := []float64{10, 0, 0, 0, 0, 0}

	local := p.Local(data, 0, 1)
	assert.Equal(t, 2, local.Count)
	assert.Equal(t, 5.0, local.Median)

	assert.Equal(t, RobustSummary{}, p.Local(nil, 3, 2))
}

func TestNormalizedEntropy(t *testing.T) {
	e := NewEntropy()

	assert.InDelta(t, 1.0, e.Normalized([]float64{1, 1, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, e.Normalized([]float64{0, 5, 0, 0}), 1e-12)
	assert.Equal(t, 0.0, e.Normalized([]float64{0, 0, 0}))
	assert.InDelta(t, math.Log(2), e.Shannon([]float64{2, 2}), 1e-12)
}
