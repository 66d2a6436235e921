package temporal

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TempoParams bounds the tempo search
type TempoParams struct {
	MinBPM     float64 `json:"min_bpm" yaml:"min_bpm" mapstructure:"min_bpm"`
	MaxBPM     float64 `json:"max_bpm" yaml:"max_bpm" mapstructure:"max_bpm"`
	DefaultBPM float64 `json:"default_bpm" yaml:"default_bpm" mapstructure:"default_bpm"`
	// MinPeriods is the number of beat periods the envelope must span
	MinPeriods int `json:"min_periods" yaml:"min_periods" mapstructure:"min_periods"`
}

// DefaultTempoParams searches 60-180 BPM
func DefaultTempoParams() TempoParams {
	return TempoParams{
		MinBPM:     60.0,
		MaxBPM:     180.0,
		DefaultBPM: 120.0,
		MinPeriods: 4,
	}
}

// TempoEstimate is a tempo and beat phase inferred from an onset envelope
type TempoEstimate struct {
	BPM float64
	// Phase is the offset of the first beat from the first frame, in seconds
	Phase float64
	// Confidence is the normalized autocorrelation at the beat period, 0 when
	// the default tempo was used
	Confidence float64
}

// Period returns the beat length in seconds
func (e TempoEstimate) Period() float64 {
	if e.BPM <= 0 {
		return 0
	}
	return 60.0 / e.BPM
}

// TempoEstimator infers tempo from a frame-rate onset envelope such as
// spectral flux
type TempoEstimator struct {
	params TempoParams
}

// NewTempoEstimator creates a tempo estimator with default parameters
func NewTempoEstimator() *TempoEstimator {
	return NewTempoEstimatorWithParams(DefaultTempoParams())
}

// NewTempoEstimatorWithParams creates a tempo estimator
func NewTempoEstimatorWithParams(params TempoParams) *TempoEstimator {
	if params.MinBPM <= 0 || params.MaxBPM <= params.MinBPM {
		params.MinBPM, params.MaxBPM = 60.0, 180.0
	}
	if params.DefaultBPM <= 0 {
		params.DefaultBPM = 120.0
	}
	return &TempoEstimator{params: params}
}

// Estimate picks the strongest autocorrelation peak inside the tempo range
// and aligns a beat phase to the envelope. Flat or short envelopes yield the
// default tempo with zero confidence.
func (te *TempoEstimator) Estimate(envelope []float64, hop float64) TempoEstimate {
	est := TempoEstimate{BPM: te.params.DefaultBPM}
	if hop <= 0 || len(envelope) < 3 {
		return est
	}

	minLag := int(math.Floor(60.0 / te.params.MaxBPM / hop))
	maxLag := int(math.Ceil(60.0 / te.params.MinBPM / hop))
	if minLag < 1 {
		minLag = 1
	}
	if need := maxLag * max(te.params.MinPeriods, 1); len(envelope) < need {
		est.Phase = te.Phase(envelope, hop, est.BPM)
		return est
	}

	ac := Autocorrelation(envelope, maxLag+2)
	bestLag, bestVal := 0, 0.0
	for lag := minLag; lag <= maxLag && lag+1 < len(ac); lag++ {
		// the shortest of equally strong periods wins
		if ac[lag] > ac[lag-1] && ac[lag] >= ac[lag+1] && ac[lag] > bestVal+1e-9 {
			bestLag, bestVal = lag, ac[lag]
		}
	}
	if bestLag == 0 {
		est.Phase = te.Phase(envelope, hop, est.BPM)
		return est
	}

	// parabolic refinement of the peak position
	lag := float64(bestLag)
	a, b, c := ac[bestLag-1], ac[bestLag], ac[bestLag+1]
	if den := a - 2*b + c; den != 0 {
		if delta := 0.5 * (a - c) / den; math.Abs(delta) < 1 {
			lag += delta
		}
	}

	est.BPM = 60.0 / (lag * hop)
	est.Confidence = math.Min(bestVal, 1)
	est.Phase = te.Phase(envelope, hop, est.BPM)
	return est
}

// Phase returns the offset within one beat period whose comb of beat
// positions collects the most envelope energy
func (te *TempoEstimator) Phase(envelope []float64, hop, bpm float64) float64 {
	if hop <= 0 || bpm <= 0 || len(envelope) == 0 {
		return 0
	}
	period := 60.0 / bpm / hop
	steps := int(math.Ceil(period))
	bestOffset, bestSum := 0, -1.0
	for offset := 0; offset < steps; offset++ {
		sum := 0.0
		for pos := float64(offset); int(math.Round(pos)) < len(envelope); pos += period {
			sum += envelope[int(math.Round(pos))]
		}
		if sum > bestSum {
			bestOffset, bestSum = offset, sum
		}
	}
	return float64(bestOffset) * hop
}

// Beats lays a uniform beat grid from start+phase up to, but excluding, end.
// A beat within a millionth of a period of end counts as landing on it.
func Beats(est TempoEstimate, start, end float64) []float64 {
	period := est.Period()
	if period <= 0 || end <= start {
		return nil
	}
	limit := end - 1e-6*period
	var beats []float64
	for k := 0; ; k++ {
		t := start + est.Phase + float64(k)*period
		if t >= limit {
			break
		}
		beats = append(beats, t)
	}
	return beats
}

// Autocorrelation returns the mean-removed autocorrelation of signal for lags
// [0, maxLag), normalized so lag 0 is 1. A constant signal yields all zeros.
func Autocorrelation(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}
	out := make([]float64, max(maxLag, 0))
	if len(out) == 0 {
		return out
	}

	centered := make([]float64, len(signal))
	copy(centered, signal)
	floats.AddConst(-stat.Mean(signal, nil), centered)

	for lag := range out {
		out[lag] = floats.Dot(centered[:len(centered)-lag], centered[lag:]) / float64(len(centered)-lag)
	}
	if out[0] <= 1e-12 {
		clear(out)
		return out
	}
	floats.Scale(1/out[0], out)
	return out
}
