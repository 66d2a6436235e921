package features

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// SynthParams configures a synthetic feature bundle built from a block
// pattern such as "AABB". Each letter selects a block whose harmony glides
// from one triad to another and then resets, so repeated letters produce
// identical blocks with a discontinuity between them.
type SynthParams struct {
	Pattern      string  `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	BlockSeconds float64 `json:"block_seconds" yaml:"block_seconds" mapstructure:"block_seconds"`
	TempoBPM     float64 `json:"tempo_bpm" yaml:"tempo_bpm" mapstructure:"tempo_bpm"`
	Hop          float64 `json:"hop" yaml:"hop" mapstructure:"hop"`
	WithMFCC     bool    `json:"with_mfcc" yaml:"with_mfcc" mapstructure:"with_mfcc"`
	WithVocal    bool    `json:"with_vocal" yaml:"with_vocal" mapstructure:"with_vocal"`
	WithBass     bool    `json:"with_bass" yaml:"with_bass" mapstructure:"with_bass"`
	Noise        float64 `json:"noise" yaml:"noise" mapstructure:"noise"`
	Seed         int64   `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DefaultSynthParams returns a 60 second AABB bundle at 120 BPM
func DefaultSynthParams() SynthParams {
	return SynthParams{
		Pattern:      "AABB",
		BlockSeconds: 15.0,
		TempoBPM:     120.0,
		Hop:          0.1,
		WithMFCC:     true,
		WithVocal:    true,
		WithBass:     false,
		Noise:        0.0,
		Seed:         1,
	}
}

type synthBlock struct {
	from  []int
	to    []int
	rms   float64
	vocal float64
	// timbre variant applied to the base mfcc vector
	mfccSign  float64
	mfccShift int
}

var synthBlocks = []synthBlock{
	{from: []int{0, 4, 7}, to: []int{5, 9, 0}, rms: 0.5, vocal: 0.8, mfccSign: 1},
	{from: []int{6, 10, 1}, to: []int{11, 3, 6}, rms: 1.0, vocal: 0.9, mfccSign: -1},
	{from: []int{2, 5, 9}, to: []int{7, 11, 2}, rms: 0.7, vocal: 0.2, mfccSign: 1, mfccShift: 4},
	{from: []int{3, 7, 10}, to: []int{8, 0, 3}, rms: 0.3, vocal: 0.0, mfccSign: -1, mfccShift: 7},
}

var synthMFCCBase = []float64{1.0, 0.6, -0.4, 0.3, -0.2, 0.1, 0.5, -0.3, 0.2, -0.1, 0.4, -0.2, 0.1}

// Synthesize builds a deterministic bundle from p. Letters index the block
// table modulo its size ('A' is the first block).
func Synthesize(p SynthParams) (*Bundle, error) {
	pattern := strings.ToUpper(strings.TrimSpace(p.Pattern))
	if pattern == "" {
		return nil, fmt.Errorf("synth pattern is empty")
	}
	for _, r := range pattern {
		if r < 'A' || r > 'Z' {
			return nil, fmt.Errorf("synth pattern %q: block names must be letters", p.Pattern)
		}
	}
	if p.BlockSeconds <= 0 || p.Hop <= 0 || p.TempoBPM <= 0 {
		return nil, fmt.Errorf("synth block length, hop and tempo must be positive")
	}

	framesPerBlock := int(math.Round(p.BlockSeconds / p.Hop))
	if framesPerBlock < 1 {
		framesPerBlock = 1
	}
	n := framesPerBlock * len(pattern)
	duration := float64(n) * p.Hop
	rng := rand.New(rand.NewSource(p.Seed))

	bundle := &Bundle{
		FrameHopSeconds: p.Hop,
		DurationSeconds: duration,
		ChromaFrames:    make([]ChromaFrame, n),
		RMSFrames:       make([]ScalarFrame, n),
		FluxFrames:      make([]ScalarFrame, n),
		DetectedKey:     "C",
		DetectedMode:    "major",
		KeyConfidence:   0.8,
	}

	for i := 0; i < n; i++ {
		t := float64(i) * p.Hop
		block := synthBlocks[int(pattern[i/framesPerBlock]-'A')%len(synthBlocks)]
		u := float64(i%framesPerBlock) / float64(framesPerBlock)

		chroma := make([]float64, 12)
		for _, pc := range block.from {
			chroma[pc] += 1 - u
		}
		for _, pc := range block.to {
			chroma[pc] += u
		}
		if p.Noise > 0 {
			for k := range chroma {
				chroma[k] += p.Noise * rng.Float64()
			}
		}

		bundle.ChromaFrames[i] = ChromaFrame{Timestamp: t, Chroma: chroma}
		bundle.RMSFrames[i] = ScalarFrame{Timestamp: t, Value: block.rms}
		bundle.FluxFrames[i] = ScalarFrame{Timestamp: t, Value: 0.1}

		if p.WithMFCC {
			mfcc := make([]float64, len(synthMFCCBase))
			for k := range mfcc {
				mfcc[k] = block.mfccSign * synthMFCCBase[(k+block.mfccShift)%len(synthMFCCBase)]
			}
			bundle.MFCCFrames = append(bundle.MFCCFrames, MFCCFrame{Timestamp: t, MFCC: mfcc})
		}
		if p.WithVocal {
			bundle.VocalFrames = append(bundle.VocalFrames, VocalFrame{Timestamp: t, Probability: block.vocal})
		}
	}

	beatLen := 60.0 / p.TempoBPM
	beats := make([]float64, 0, int(duration/beatLen)+1)
	for t := 0.0; t < duration-1e-9; t += beatLen {
		beats = append(beats, math.Round(t*1e6)/1e6)
	}
	bundle.BeatGrid = BeatGrid{
		TempoBPM:           p.TempoBPM,
		BeatTimestamps:     beats,
		DownbeatTimestamps: Downbeats(beats, 4),
		TimeSignature:      "4/4",
	}

	if p.WithBass {
		for _, bt := range beats {
			i := min(n-1, int(math.Round(bt/p.Hop)))
			block := synthBlocks[int(pattern[i/framesPerBlock]-'A')%len(synthBlocks)]
			root := block.from[0]
			if float64(i%framesPerBlock)/float64(framesPerBlock) >= 0.5 {
				root = block.to[0]
			}
			bundle.BassNotes = append(bundle.BassNotes, BassNote{Timestamp: bt, PitchClass: root})
		}
	}

	return bundle, nil
}
