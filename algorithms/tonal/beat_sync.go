package tonal

import (
	"sort"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

// BeatSyncParams shapes the per-beat analysis window
type BeatSyncParams struct {
	// Window start offset as a fraction of the beat length
	WindowShift float64 `json:"window_shift" yaml:"window_shift" mapstructure:"window_shift"`
	// Gaussian center as a fraction of the beat length from the beat onset
	WindowCenter float64 `json:"window_center" yaml:"window_center" mapstructure:"window_center"`
	// Gaussian sigma as a fraction of the beat length
	WindowSigma float64 `json:"window_sigma" yaml:"window_sigma" mapstructure:"window_sigma"`
}

// DefaultBeatSyncParams weights the post-attack sustain of each beat
func DefaultBeatSyncParams() BeatSyncParams {
	return BeatSyncParams{
		WindowShift:  0.1,
		WindowCenter: 0.55,
		WindowSigma:  0.3,
	}
}

// BeatSynchronize averages chroma frames into one vector per beat. Frames are
// gathered from the beat window shifted forward by WindowShift and weighted by
// a Gaussian centered WindowCenter through the beat, which keeps percussive
// onsets out of the pitch content. The last beat uses the median beat length,
// or 60/tempo when there is a single beat. A beat without frames yields a zero
// vector.
func BeatSynchronize(timestamps []float64, frames [][]float64, beats []float64, tempoBPM float64, params BeatSyncParams) [][]float64 {
	out := make([][]float64, len(beats))
	if len(beats) == 0 {
		return out
	}

	fallback := 0.5
	if tempoBPM > 0 {
		fallback = 60.0 / tempoBPM
	}
	if len(beats) >= 2 {
		intervals := make([]float64, 0, len(beats)-1)
		for i := 1; i < len(beats); i++ {
			if d := beats[i] - beats[i-1]; d > 0 {
				intervals = append(intervals, d)
			}
		}
		if m := common.Median(intervals); m > 0 {
			fallback = m
		}
	}

	for i, t := range beats {
		length := fallback
		if i+1 < len(beats) && beats[i+1] > t {
			length = beats[i+1] - t
		}
		out[i] = weightedBeatChroma(timestamps, frames, t, length, params)
	}
	return out
}

func weightedBeatChroma(timestamps []float64, frames [][]float64, onset, length float64, params BeatSyncParams) []float64 {
	v := make([]float64, chroma.NumPitchClasses)
	start := onset + params.WindowShift*length
	end := start + length
	center := onset + params.WindowCenter*length
	sigma := params.WindowSigma * length

	total := 0.0
	lo := sort.SearchFloat64s(timestamps, start)
	for j := lo; j < len(timestamps) && j < len(frames) && timestamps[j] < end; j++ {
		if len(frames[j]) != chroma.NumPitchClasses {
			continue
		}
		w := common.Gaussian(timestamps[j], center, sigma)
		floats.AddScaled(v, w, frames[j])
		total += w
	}
	if total > 0 {
		floats.Scale(1.0/total, v)
	}
	return v
}
