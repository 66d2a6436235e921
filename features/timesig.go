package features

import (
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-forma/algorithms/temporal"
)

// TimeSignatureEstimate is a detected meter with a confidence in [0,1]
type TimeSignatureEstimate struct {
	Signature  string  `json:"signature" yaml:"signature"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// DetectTimeSignature infers the meter from beat spacing. A steady grid is
// reported as 4/4; an uneven one is checked for a 3- or 6-beat periodicity in
// the interval pattern. Fewer than 8 beats defaults to 4/4 at low confidence.
func DetectTimeSignature(beats []float64) TimeSignatureEstimate {
	if len(beats) < 8 {
		return TimeSignatureEstimate{Signature: "4/4", Confidence: 0.5}
	}

	intervals := make([]float64, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		intervals[i-1] = beats[i] - beats[i-1]
	}

	mean, std := stat.MeanStdDev(intervals, nil)
	cv := std / (mean + 1e-10)
	if cv < 0.15 {
		return TimeSignatureEstimate{Signature: "4/4", Confidence: 0.8}
	}

	if len(intervals) >= 12 {
		centered := make([]float64, len(intervals))
		copy(centered, intervals)
		floats.AddConst(-mean, centered)

		ac := autocorrelation(centered, 10)
		if ac[3] > 0.7*floats.Max(ac[1:6]) && ac[3] > 0 {
			return TimeSignatureEstimate{Signature: "3/4", Confidence: 0.7}
		}
		if ac[6] > 0.7*floats.Max(ac[1:10]) && ac[6] > 0 {
			return TimeSignatureEstimate{Signature: "6/8", Confidence: 0.7}
		}
	}

	return TimeSignatureEstimate{Signature: "4/4", Confidence: 0.6}
}

// autocorrelation returns lags 0..maxLag, normalized by the lag-0 energy
func autocorrelation(x []float64, maxLag int) []float64 {
	out := make([]float64, maxLag+1)
	energy := floats.Dot(x, x)
	if energy == 0 {
		return out
	}
	for lag := 0; lag <= maxLag && lag < len(x); lag++ {
		out[lag] = floats.Dot(x[:len(x)-lag], x[lag:]) / energy
	}
	return out
}

// BeatsPerBar returns the numerator of a time signature, 4 when unparseable
func BeatsPerBar(signature string) int {
	num, _, ok := strings.Cut(strings.TrimSpace(signature), "/")
	if !ok {
		return 4
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 || n > 16 {
		return 4
	}
	return n
}

// Downbeats returns every beatsPerBar-th beat starting with the first
func Downbeats(beats []float64, beatsPerBar int) []float64 {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	out := make([]float64, 0, len(beats)/beatsPerBar+1)
	for i := 0; i < len(beats); i += beatsPerBar {
		out = append(out, beats[i])
	}
	return out
}

// ResolveBeatGrid fills missing time signature and downbeats from the beats.
// A bundle without beats gets a uniform grid inferred from the flux envelope
// of frames; the stated tempo, when present, fixes the grid spacing.
func (b *Bundle) ResolveBeatGrid(frames *Frames) BeatGrid {
	grid := b.BeatGrid
	grid.TempoBPM = b.Tempo()
	if len(grid.BeatTimestamps) == 0 && frames.Len() > 0 {
		est := inferTempo(b, frames)
		grid.TempoBPM = est.BPM
		grid.BeatTimestamps = temporal.Beats(est, frames.Timestamps[0], frames.TimeAt(frames.Len()))
		grid.DownbeatTimestamps = nil
		grid.Inferred = true
	}
	if grid.TimeSignature == "" {
		grid.TimeSignature = DetectTimeSignature(grid.BeatTimestamps).Signature
	}
	if len(grid.DownbeatTimestamps) == 0 {
		grid.DownbeatTimestamps = Downbeats(grid.BeatTimestamps, BeatsPerBar(grid.TimeSignature))
	}
	return grid
}

func inferTempo(b *Bundle, frames *Frames) temporal.TempoEstimate {
	te := temporal.NewTempoEstimator()
	if bpm := b.BeatGrid.TempoBPM; bpm > 0 && isFinite(bpm) {
		return temporal.TempoEstimate{BPM: bpm, Phase: te.Phase(frames.Flux, frames.Hop, bpm)}
	}
	return te.Estimate(frames.Flux, frames.Hop)
}
