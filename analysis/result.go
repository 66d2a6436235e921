package analysis

import (
	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/structure"
	"github.com/RyanBlaney/sonido-forma/theory"
)

// Result is the structural map and chord timeline of one track. It holds plain
// data only and round-trips through JSON.
type Result struct {
	Sections      []structure.Section    `json:"sections"`
	Clusters      []structure.Cluster    `json:"clusters"`
	Chords        []ChordEntry           `json:"chords"`
	Key           tonal.Key              `json:"key"`
	TempoBPM      float64                `json:"tempo_bpm"`
	TimeSignature string                 `json:"time_signature"`
	Boundaries    []Boundary             `json:"boundaries"`
	Novelty       []float64              `json:"novelty,omitempty"`
	ReviewFlags   []structure.ReviewFlag `json:"review_flags"`
	Corrections   []theory.Correction    `json:"corrections"`
	Merges        []theory.Merge         `json:"merges,omitempty"`
	Diagnostics   Diagnostics            `json:"diagnostics"`
}

// ChordEntry is one beat of the chord timeline
type ChordEntry struct {
	Timestamp  float64 `json:"timestamp"`
	Bar        int     `json:"bar"`
	Beat       int     `json:"beat"`
	Chord      string  `json:"chord"`
	Confidence float64 `json:"confidence"`
	Bass       string  `json:"bass,omitempty"`
	Inversion  int     `json:"inversion,omitempty"`
	Corrected  bool    `json:"corrected,omitempty"`
}

// Boundary is a section edge on the full-resolution frame timeline
type Boundary struct {
	Frame    int     `json:"frame"`
	Time     float64 `json:"time"`
	Strength float64 `json:"strength"`
	Hard     bool    `json:"hard"`
}

// Diagnostics describes how the input was interpreted
type Diagnostics struct {
	Frames           int      `json:"frames"`
	AnalysisFrames   int      `json:"analysis_frames"`
	DownsampleFactor int      `json:"downsample_factor"`
	ReplacedSamples  int      `json:"replaced_samples"`
	DerivedTracks    []string `json:"derived_tracks,omitempty"`
	HasMFCC          bool     `json:"has_mfcc"`
	HasVocal         bool     `json:"has_vocal"`
	// KeySource is "bundle", "estimated" or "none"
	KeySource   string  `json:"key_source"`
	Genre       string  `json:"genre"`
	Sensitivity float64 `json:"sensitivity"`
	Retried     bool    `json:"retried"`
	Refined     int     `json:"refined"`
	CacheHits   int64   `json:"cache_hits"`
	CacheMisses int64   `json:"cache_misses"`
	// Stage durations in milliseconds
	StageMillis map[Stage]float64 `json:"stage_millis"`
}

// SectionAt returns the section containing t, or false
func (r *Result) SectionAt(t float64) (structure.Section, bool) {
	for _, s := range r.Sections {
		if t >= s.StartTime && t < s.EndTime {
			return s, true
		}
	}
	return structure.Section{}, false
}

func chordEntries(events []tonal.ChordEvent) []ChordEntry {
	out := make([]ChordEntry, len(events))
	for i, ev := range events {
		out[i] = ChordEntry{
			Timestamp:  ev.Timestamp,
			Bar:        ev.Bar,
			Beat:       ev.Beat,
			Chord:      ev.Chord,
			Confidence: ev.Confidence,
			Inversion:  ev.Inversion,
			Corrected:  ev.Corrected,
		}
		if ev.Bass != tonal.NoBass {
			out[i].Bass = chroma.PitchClassName(ev.Bass)
		}
	}
	return out
}
