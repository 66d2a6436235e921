package tonal

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
)

// ChordQuality represents the quality/type of a chord
type ChordQuality int

const (
	ChordMajor ChordQuality = iota
	ChordMinor
	ChordDom7
	ChordMaj7
	ChordMin7
	ChordSus4
)

var qualitySuffixes = map[ChordQuality]string{
	ChordMajor: "",
	ChordMinor: "m",
	ChordDom7:  "7",
	ChordMaj7:  "maj7",
	ChordMin7:  "m7",
	ChordSus4:  "sus4",
}

var qualityNames = map[ChordQuality]string{
	ChordMajor: "major",
	ChordMinor: "minor",
	ChordDom7:  "dominant7",
	ChordMaj7:  "major7",
	ChordMin7:  "minor7",
	ChordSus4:  "sus4",
}

// Suffix returns the label suffix ("", "m", "7", "maj7", "m7", "sus4")
func (q ChordQuality) Suffix() string {
	return qualitySuffixes[q]
}

func (q ChordQuality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the quality by name
func (q ChordQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText accepts the names produced by String
func (q *ChordQuality) UnmarshalText(text []byte) error {
	for quality, name := range qualityNames {
		if name == string(text) {
			*q = quality
			return nil
		}
	}
	return fmt.Errorf("unknown chord quality %q", string(text))
}

// ParseQualitySuffix reads a chord suffix such as "m7" or "maj7"
func ParseQualitySuffix(suffix string) (ChordQuality, bool) {
	switch strings.TrimSpace(suffix) {
	case "", "maj", "M":
		return ChordMajor, true
	case "m", "min", "-":
		return ChordMinor, true
	case "7", "dom7":
		return ChordDom7, true
	case "maj7", "M7", "Δ7":
		return ChordMaj7, true
	case "m7", "min7", "-7":
		return ChordMin7, true
	case "sus4", "sus":
		return ChordSus4, true
	}
	return ChordMajor, false
}

// HasSeventh reports whether the quality carries a seventh
func (q ChordQuality) HasSeventh() bool {
	return q == ChordDom7 || q == ChordMaj7 || q == ChordMin7
}

// Intervals returns the chord tones as semitones above the root
func (q ChordQuality) Intervals() []int {
	switch q {
	case ChordMinor:
		return []int{0, 3, 7}
	case ChordDom7:
		return []int{0, 4, 7, 10}
	case ChordMaj7:
		return []int{0, 4, 7, 11}
	case ChordMin7:
		return []int{0, 3, 7, 10}
	case ChordSus4:
		return []int{0, 5, 7}
	}
	return []int{0, 4, 7}
}

// ChordName formats a root and quality, e.g. "A#m7"
func ChordName(root int, quality ChordQuality) string {
	return chroma.PitchClassName(root) + quality.Suffix()
}

// ChordTemplate is the pitch-class weight vector of one (root, quality) pair.
// Pattern is L2-normalized so a dot product with a unit chroma vector is the
// cosine similarity.
type ChordTemplate struct {
	Root    int          `json:"root"`
	Quality ChordQuality `json:"quality"`
	Name    string       `json:"name"`
	Pattern []float64    `json:"pattern"`
}

// Chord-tone weights in Intervals order. Triads are weighted, the rest binary.
var qualityWeights = map[ChordQuality][]float64{
	ChordMajor: {1.0, 0.8, 1.1},
	ChordMinor: {1.0, 0.8, 0.9},
	ChordDom7:  {1, 1, 1, 1},
	ChordMaj7:  {1, 1, 1, 1},
	ChordMin7:  {1, 1, 1, 1},
	ChordSus4:  {1, 1, 1},
}

// template tables built once; patterns are shared and must not be mutated
var (
	triadTemplates   = buildTemplates(ChordMajor, ChordMinor)
	seventhTemplates = buildTemplates(ChordDom7, ChordMaj7, ChordMin7)
	susTemplates     = buildTemplates(ChordSus4)
)

func buildTemplates(qualities ...ChordQuality) []ChordTemplate {
	shifter := chroma.NewChromaVectorAnalyzer()
	out := make([]ChordTemplate, 0, len(qualities)*chroma.NumPitchClasses)
	for _, q := range qualities {
		base := make([]float64, chroma.NumPitchClasses)
		for i, interval := range q.Intervals() {
			base[interval] = qualityWeights[q][i]
		}
		base = common.L2Normalize(base)
		for root := 0; root < chroma.NumPitchClasses; root++ {
			out = append(out, ChordTemplate{
				Root:    root,
				Quality: q,
				Name:    ChordName(root, q),
				Pattern: shifter.CircularShift(base, root),
			})
		}
	}
	return out
}

// Templates returns the template table: 24 weighted major and minor triads,
// then optionally the binary seventh and sus4 templates.
func Templates(sevenths, sus bool) []ChordTemplate {
	out := make([]ChordTemplate, 0, len(triadTemplates)+len(seventhTemplates)+len(susTemplates))
	out = append(out, triadTemplates...)
	if sevenths {
		out = append(out, seventhTemplates...)
	}
	if sus {
		out = append(out, susTemplates...)
	}
	return out
}

// Template returns the table entry for a root and quality
func Template(root int, quality ChordQuality) ChordTemplate {
	root = ((root % chroma.NumPitchClasses) + chroma.NumPitchClasses) % chroma.NumPitchClasses
	switch quality {
	case ChordMinor:
		return triadTemplates[chroma.NumPitchClasses+root]
	case ChordDom7, ChordMaj7, ChordMin7:
		return seventhTemplates[int(quality-ChordDom7)*chroma.NumPitchClasses+root]
	case ChordSus4:
		return susTemplates[root]
	}
	return triadTemplates[root]
}

// TemplateFit returns the cosine similarity of a chroma vector with a chord
// template, 0 for silent input
func TemplateFit(v []float64, root int, quality ChordQuality) float64 {
	return max(0, common.CosineSimilarity(v, Template(root, quality).Pattern))
}
