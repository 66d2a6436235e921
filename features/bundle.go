package features

import (
	"math"
	"sort"
)

// Bundle is the per-track feature document produced by a DSP backend. It is
// the only input the analysis core consumes; every field except the chroma
// frames may be missing.
type Bundle struct {
	FrameHopSeconds float64 `json:"frame_hop_seconds" yaml:"frame_hop_seconds"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`

	ChromaFrames []ChromaFrame `json:"chroma_frames" yaml:"chroma_frames"`
	MFCCFrames   []MFCCFrame   `json:"mfcc_frames,omitempty" yaml:"mfcc_frames,omitempty"`
	RMSFrames    []ScalarFrame `json:"rms_frames,omitempty" yaml:"rms_frames,omitempty"`
	FluxFrames   []ScalarFrame `json:"flux_frames,omitempty" yaml:"flux_frames,omitempty"`
	VocalFrames  []VocalFrame  `json:"vocal_frames,omitempty" yaml:"vocal_frames,omitempty"`
	BassNotes    []BassNote    `json:"bass_notes,omitempty" yaml:"bass_notes,omitempty"`

	BeatGrid BeatGrid `json:"beat_grid" yaml:"beat_grid"`

	// Best-effort key guess from the backend ("C#", "minor"); empty when unknown
	DetectedKey   string  `json:"detected_key,omitempty" yaml:"detected_key,omitempty"`
	DetectedMode  string  `json:"detected_mode,omitempty" yaml:"detected_mode,omitempty"`
	KeyConfidence float64 `json:"key_confidence,omitempty" yaml:"key_confidence,omitempty"`

	Genre string `json:"genre,omitempty" yaml:"genre,omitempty"`
}

// ChromaFrame is one 12-bin pitch-class energy sample
type ChromaFrame struct {
	Timestamp float64   `json:"timestamp" yaml:"timestamp"`
	Chroma    []float64 `json:"chroma" yaml:"chroma"`
}

// MFCCFrame is one timbre sample
type MFCCFrame struct {
	Timestamp float64   `json:"timestamp" yaml:"timestamp"`
	MFCC      []float64 `json:"mfcc" yaml:"mfcc"`
}

// ScalarFrame carries one scalar track sample (rms, spectral flux)
type ScalarFrame struct {
	Timestamp float64 `json:"timestamp" yaml:"timestamp"`
	Value     float64 `json:"value" yaml:"value"`
}

// VocalFrame carries a vocal-presence probability in [0,1]
type VocalFrame struct {
	Timestamp   float64 `json:"timestamp" yaml:"timestamp"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// BassNote is the lowest detected pitch class around a timestamp
type BassNote struct {
	Timestamp  float64 `json:"timestamp" yaml:"timestamp"`
	PitchClass int     `json:"pitch_class" yaml:"pitch_class"`
}

// BeatGrid holds the tempo and beat positions
type BeatGrid struct {
	TempoBPM           float64   `json:"tempo_bpm" yaml:"tempo_bpm"`
	BeatTimestamps     []float64 `json:"beat_timestamps" yaml:"beat_timestamps"`
	DownbeatTimestamps []float64 `json:"downbeat_timestamps,omitempty" yaml:"downbeat_timestamps,omitempty"`
	TimeSignature      string    `json:"time_signature,omitempty" yaml:"time_signature,omitempty"`

	// Inferred is set by ResolveBeatGrid when the beats were estimated
	Inferred bool `json:"-" yaml:"-"`
}

// DefaultTempoBPM is assumed when neither the tempo nor the beats are usable
const DefaultTempoBPM = 120.0

// Tempo returns the bundle tempo, falling back to the median beat interval and
// then DefaultTempoBPM.
func (b *Bundle) Tempo() float64 {
	if b.BeatGrid.TempoBPM > 0 && isFinite(b.BeatGrid.TempoBPM) {
		return b.BeatGrid.TempoBPM
	}
	if interval := MedianBeatInterval(b.BeatGrid.BeatTimestamps); interval > 0 {
		return 60.0 / interval
	}
	return DefaultTempoBPM
}

// Hop returns the frame hop, deriving it from chroma timestamps when the
// bundle does not state it.
func (b *Bundle) Hop() float64 {
	if b.FrameHopSeconds > 0 && isFinite(b.FrameHopSeconds) {
		return b.FrameHopSeconds
	}
	if len(b.ChromaFrames) >= 2 {
		diffs := make([]float64, 0, len(b.ChromaFrames)-1)
		for i := 1; i < len(b.ChromaFrames); i++ {
			if d := b.ChromaFrames[i].Timestamp - b.ChromaFrames[i-1].Timestamp; d > 0 {
				diffs = append(diffs, d)
			}
		}
		if len(diffs) > 0 {
			sort.Float64s(diffs)
			return diffs[len(diffs)/2]
		}
	}
	return 0.1
}

// Duration returns the stated duration or the time of the last chroma frame
// plus one hop.
func (b *Bundle) Duration() float64 {
	if b.DurationSeconds > 0 && isFinite(b.DurationSeconds) {
		return b.DurationSeconds
	}
	if n := len(b.ChromaFrames); n > 0 {
		return b.ChromaFrames[n-1].Timestamp + b.Hop()
	}
	return 0
}

// Validate reports structural problems that make a bundle unusable as a
// document. Numeric degeneracy (NaN samples, silent frames) is not an error.
func (b *Bundle) Validate() error {
	if b.FrameHopSeconds < 0 || math.IsNaN(b.FrameHopSeconds) {
		return NewBundleError("frame_hop_seconds", "must be a positive number", nil)
	}
	for i, f := range b.ChromaFrames {
		if len(f.Chroma) != 0 && len(f.Chroma) != 12 {
			return NewBundleError("chroma_frames", "chroma vectors must have 12 bins", nil).WithIndex(i)
		}
		if i > 0 && f.Timestamp < b.ChromaFrames[i-1].Timestamp {
			return NewBundleError("chroma_frames", "timestamps must not decrease", nil).WithIndex(i)
		}
	}
	for i := 1; i < len(b.BeatGrid.BeatTimestamps); i++ {
		if b.BeatGrid.BeatTimestamps[i] < b.BeatGrid.BeatTimestamps[i-1] {
			return NewBundleError("beat_grid.beat_timestamps", "timestamps must not decrease", nil).WithIndex(i)
		}
	}
	for i, n := range b.BassNotes {
		if n.PitchClass < 0 || n.PitchClass > 11 {
			return NewBundleError("bass_notes", "pitch class must be in [0,11]", nil).WithIndex(i)
		}
	}
	return nil
}

// MedianBeatInterval returns the median positive gap between beats, or 0
func MedianBeatInterval(beats []float64) float64 {
	if len(beats) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		if d := beats[i] - beats[i-1]; d > 0 && isFinite(d) {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Float64s(gaps)
	return gaps[len(gaps)/2]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
