package tonal

import (
	"context"
	"fmt"
	"sort"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NoChord labels beats without detectable harmony
const NoChord = "N"

// NoBass marks a chord event without an observed bass note
const NoBass = -1

// ChordParams contains parameters for beat-level chord analysis
type ChordParams struct {
	IncludeSevenths bool `json:"include_sevenths" yaml:"include_sevenths" mapstructure:"include_sevenths"`
	IncludeSus      bool `json:"include_sus" yaml:"include_sus" mapstructure:"include_sus"`

	// Key bias added to in-scale roots and subtracted from the others
	KeyBonus   float64 `json:"key_bonus" yaml:"key_bonus" mapstructure:"key_bonus"`
	KeyPenalty float64 `json:"key_penalty" yaml:"key_penalty" mapstructure:"key_penalty"`
	// Key bias is skipped when the best raw template score is below this
	KeySafety float64 `json:"key_safety" yaml:"key_safety" mapstructure:"key_safety"`

	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// Decode over the 12 roots instead of every template
	RootOnly bool `json:"root_only" yaml:"root_only" mapstructure:"root_only"`
	// Bias toward the strongest chroma bin after root collapse
	StrongestBinBias float64 `json:"strongest_bin_bias" yaml:"strongest_bin_bias" mapstructure:"strongest_bin_bias"`

	DetectInversions bool `json:"detect_inversions" yaml:"detect_inversions" mapstructure:"detect_inversions"`

	BeatSync    BeatSyncParams   `json:"beat_sync" yaml:"beat_sync" mapstructure:"beat_sync"`
	Transitions TransitionParams `json:"transitions" yaml:"transitions" mapstructure:"transitions"`
}

// DefaultChordParams returns the standard chord analysis parameters
func DefaultChordParams() ChordParams {
	return ChordParams{
		IncludeSevenths:  true,
		IncludeSus:       false,
		KeyBonus:         0.12,
		KeyPenalty:       0.05,
		KeySafety:        0.3,
		Temperature:      0.1,
		RootOnly:         true,
		StrongestBinBias: 0.1,
		DetectInversions: true,
		BeatSync:         DefaultBeatSyncParams(),
		Transitions:      DefaultTransitionParams(),
	}
}

// KeySpan is a key active over [Start, End) seconds, e.g. a section key
type KeySpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Key   Key     `json:"key"`
}

// BassObservation is the lowest detected pitch class at a time
type BassObservation struct {
	Timestamp  float64 `json:"timestamp"`
	PitchClass int     `json:"pitch_class"`
}

// ChordInput is the frame-level material for one track
type ChordInput struct {
	Timestamps  []float64
	Chroma      [][]float64
	Beats       []float64
	Downbeats   []float64
	TempoBPM    float64
	BeatsPerBar int

	// Global key; UnknownKey disables key bias outside SectionKeys
	Key         Key
	SectionKeys []KeySpan
	Bass        []BassObservation
}

// ChordEvent is one beat of the decoded chord path
type ChordEvent struct {
	Timestamp  float64      `json:"timestamp"`
	Bar        int          `json:"bar"`
	Beat       int          `json:"beat"`
	Chord      string       `json:"chord"`
	Root       int          `json:"root"`
	Quality    ChordQuality `json:"quality"`
	Confidence float64      `json:"confidence"`
	Bass       int          `json:"bass"`
	Inversion  int          `json:"inversion,omitempty"`
	Corrected  bool         `json:"corrected,omitempty"`

	// Beat-synchronized chroma the chord was decoded from
	BeatChroma []float64 `json:"-"`
}

// HasChord reports whether the event carries a chord
func (e ChordEvent) HasChord() bool {
	return e.Chord != "" && e.Chord != NoChord
}

// BeatScore holds the per-beat scoring stages
type BeatScore struct {
	// Raw cosine score per template, clamped at 0
	Raw []float64
	// Best raw score, before any key bias
	BestRaw float64
	// KeyApplied reports whether the key bias was used
	KeyApplied bool
	// Softmax probability per template
	Templates []float64
	// Probability per decoding state (roots or templates), sums to 1
	States []float64
}

// ChordResult is the decoded chord timeline
type ChordResult struct {
	Events []ChordEvent `json:"events"`
	States []string     `json:"states"`
	// Probability rows fed to the decoder, one per beat
	Rows [][]float64 `json:"-"`
}

// ChordAnalyzer scores beat-synchronized chroma against chord templates and
// decodes the most likely chord sequence.
//
// References:
//   - Fujishima, T. (1999). "Realtime Chord Recognition of Musical Sound: a
//     System Using Common Lisp Music". ICMC.
//   - Bello, J. P., Pickens, J. (2005). "A Robust Mid-level Representation for
//     Harmonic Content in Music Signals". ISMIR.
type ChordAnalyzer struct {
	params    ChordParams
	templates []ChordTemplate
	roots     []int
	states    []string
	trans     *mat.Dense

	chromaAnalyzer *chroma.ChromaVectorAnalyzer
	logger         logging.Logger
}

// NewChordAnalyzer creates an analyzer with default parameters
func NewChordAnalyzer() *ChordAnalyzer {
	return NewChordAnalyzerWithParams(DefaultChordParams())
}

// NewChordAnalyzerWithParams creates an analyzer with custom parameters
func NewChordAnalyzerWithParams(params ChordParams) *ChordAnalyzer {
	ca := &ChordAnalyzer{
		params:         params,
		templates:      Templates(params.IncludeSevenths, params.IncludeSus),
		chromaAnalyzer: chroma.NewChromaVectorAnalyzer(),
		logger: logging.WithFields(logging.Fields{
			"component": "chord_analyzer",
		}),
	}

	if params.RootOnly {
		for r := 0; r < chroma.NumPitchClasses; r++ {
			ca.roots = append(ca.roots, r)
			ca.states = append(ca.states, chroma.PitchClassName(r))
		}
	} else {
		for _, t := range ca.templates {
			ca.roots = append(ca.roots, t.Root)
			ca.states = append(ca.states, t.Name)
		}
	}
	ca.trans = TransitionMatrix(ca.roots, params.Transitions)
	return ca
}

// States returns the decoding state names
func (ca *ChordAnalyzer) States() []string {
	return ca.states
}

// Transitions returns the transition matrix between states
func (ca *ChordAnalyzer) Transitions() mat.Matrix {
	return ca.trans
}

// ScoreBeat turns one beat chroma vector into template and state
// probabilities. The key bias applies only when the key is known and the best
// raw score reaches KeySafety.
func (ca *ChordAnalyzer) ScoreBeat(beatChroma []float64, key Key) BeatScore {
	unit := common.L2Normalize(beatChroma)
	score := BeatScore{
		Raw:       make([]float64, len(ca.templates)),
		Templates: make([]float64, len(ca.templates)),
	}
	for i, t := range ca.templates {
		score.Raw[i] = max(0, common.Dot(unit, t.Pattern))
	}
	score.BestRaw = common.Max(score.Raw)

	biased := make([]float64, len(score.Raw))
	copy(biased, score.Raw)
	if mask := key.DiatonicMask(); mask != nil && score.BestRaw >= ca.params.KeySafety {
		score.KeyApplied = true
		for i, t := range ca.templates {
			if mask[t.Root] {
				biased[i] += ca.params.KeyBonus
			} else {
				biased[i] = max(0, biased[i]-ca.params.KeyPenalty)
			}
		}
	}
	score.Templates = common.Softmax(biased, ca.params.Temperature)

	if !ca.params.RootOnly {
		score.States = score.Templates
		return score
	}

	roots := make([]float64, chroma.NumPitchClasses)
	for i, t := range ca.templates {
		roots[t.Root] += score.Templates[i]
	}
	if pc, v := ca.chromaAnalyzer.FindDominantChroma(beatChroma); pc >= 0 && v > 0 {
		roots[pc] += ca.params.StrongestBinBias
	}
	floats.Scale(1.0/floats.Sum(roots), roots)
	score.States = roots
	return score
}

// Analyze beat-synchronizes the chroma, scores every beat and decodes the
// chord path. Beats without harmony are labeled NoChord with confidence 0.
func (ca *ChordAnalyzer) Analyze(ctx context.Context, in ChordInput) (*ChordResult, error) {
	logger := ca.logger.WithFields(logging.Fields{
		"function": "Analyze",
	})

	result := &ChordResult{States: ca.states}
	if len(in.Beats) == 0 {
		logger.Warn("No beats, chord timeline is empty")
		return result, nil
	}

	beatChroma := BeatSynchronize(in.Timestamps, in.Chroma, in.Beats, in.TempoBPM, ca.params.BeatSync)

	scores := make([]BeatScore, len(in.Beats))
	result.Rows = make([][]float64, len(in.Beats))
	biased := 0
	for i, t := range in.Beats {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("chord scoring: %w", err)
			}
		}
		scores[i] = ca.ScoreBeat(beatChroma[i], keyAt(in, t))
		result.Rows[i] = scores[i].States
		if scores[i].KeyApplied {
			biased++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chord decoding: %w", err)
	}
	path := Viterbi(result.Rows, ca.trans, ca.params.Transitions.Epsilon)

	bars, positions := NumberBeats(in.Beats, in.Downbeats, in.BeatsPerBar)
	bass := attachBass(in.Beats, in.Bass)

	result.Events = make([]ChordEvent, len(in.Beats))
	for i, t := range in.Beats {
		ev := ChordEvent{
			Timestamp:  t,
			Bar:        bars[i],
			Beat:       positions[i],
			Chord:      NoChord,
			Root:       -1,
			Bass:       bass[i],
			BeatChroma: beatChroma[i],
		}
		if floats.Norm(beatChroma[i], 2) > 0 {
			ev.Root, ev.Quality = ca.resolve(path[i], scores[i])
			ev.Chord = ChordName(ev.Root, ev.Quality)
			ev.Confidence = result.Rows[i][path[i]]
			if ca.params.DetectInversions {
				ev.Inversion = Inversion(ev.Root, ev.Bass)
			}
		}
		result.Events[i] = ev
	}

	logger.Debug("Chords decoded", logging.Fields{
		"beats":       len(in.Beats),
		"states":      len(ca.states),
		"key_biased":  biased,
		"sevenths":    ca.params.IncludeSevenths,
		"root_only":   ca.params.RootOnly,
		"global_key":  in.Key.Name(),
		"section_key": len(in.SectionKeys),
	})
	return result, nil
}

// resolve maps a decoded state back to a root and quality. In root mode the
// quality is the best scoring template on that root.
func (ca *ChordAnalyzer) resolve(state int, score BeatScore) (int, ChordQuality) {
	if !ca.params.RootOnly {
		t := ca.templates[state]
		return t.Root, t.Quality
	}
	best := -1.0
	quality := ChordMajor
	for i, t := range ca.templates {
		if t.Root == state && score.Templates[i] > best {
			best = score.Templates[i]
			quality = t.Quality
		}
	}
	return state, quality
}

// keyAt returns the known section key covering t, else the global key
func keyAt(in ChordInput, t float64) Key {
	for _, span := range in.SectionKeys {
		if t >= span.Start && t < span.End && span.Key.Known() {
			return span.Key
		}
	}
	return in.Key
}

// NumberBeats assigns 1-based bar numbers and beat-in-bar positions. With
// downbeats, a bar starts at each downbeat and beats before the first one
// form bar 0; otherwise bars are counted every beatsPerBar beats.
func NumberBeats(beats, downbeats []float64, beatsPerBar int) ([]int, []int) {
	bars := make([]int, len(beats))
	positions := make([]int, len(beats))
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}

	if len(downbeats) == 0 {
		for i := range beats {
			bars[i] = i/beatsPerBar + 1
			positions[i] = i%beatsPerBar + 1
		}
		return bars, positions
	}

	const tolerance = 0.02
	bar, pos, next := 0, 0, 0
	for i, t := range beats {
		for next < len(downbeats) && t >= downbeats[next]-tolerance {
			bar = next + 1
			pos = 0
			next++
		}
		pos++
		bars[i] = bar
		positions[i] = pos
	}
	return bars, positions
}

// attachBass assigns each bass observation to its nearest beat, keeping the
// closest observation when several map to the same beat
func attachBass(beats []float64, bass []BassObservation) []int {
	out := make([]int, len(beats))
	dist := make([]float64, len(beats))
	for i := range out {
		out[i] = NoBass
	}
	for _, b := range bass {
		if b.PitchClass < 0 || b.PitchClass >= chroma.NumPitchClasses {
			continue
		}
		idx := nearestBeat(beats, b.Timestamp)
		if idx < 0 {
			continue
		}
		d := b.Timestamp - beats[idx]
		if d < 0 {
			d = -d
		}
		if out[idx] == NoBass || d < dist[idx] {
			out[idx] = b.PitchClass
			dist[idx] = d
		}
	}
	return out
}

func nearestBeat(beats []float64, t float64) int {
	if len(beats) == 0 {
		return -1
	}
	idx := sort.SearchFloat64s(beats, t)
	if idx == 0 {
		return 0
	}
	if idx >= len(beats) {
		return len(beats) - 1
	}
	if t-beats[idx-1] <= beats[idx]-t {
		return idx - 1
	}
	return idx
}

// Inversion derives the inversion from the bass interval above the root:
// a third gives 1, the fifth 2, a seventh 3
func Inversion(root, bass int) int {
	if root < 0 || bass < 0 || bass == root {
		return 0
	}
	switch ((bass-root)%12 + 12) % 12 {
	case 3, 4:
		return 1
	case 7:
		return 2
	case 10, 11:
		return 3
	}
	return 0
}
