package theory

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/logging"
	"github.com/RyanBlaney/sonido-forma/structure"
	"gonum.org/v1/gonum/floats"
)

// Rule names recorded on corrections
const (
	RuleBass              = "bass_disambiguation"
	RuleSecondaryDominant = "secondary_dominant"
	RulePredominant       = "predominant"
	RuleCadence           = "authentic_cadence"
	RuleVoiceLeading      = "voice_leading"
	RuleHarmonicRhythm    = "harmonic_rhythm"
	RuleExtension         = "genre_extension"
)

// CorrectorParams holds the thresholds of the correction rules
type CorrectorParams struct {
	// Largest bass step, in semitones, still read as a passing tone
	PassingToneMaxStep int `json:"passing_tone_max_step" yaml:"passing_tone_max_step" mapstructure:"passing_tone_max_step"`

	// Voice-leading cost (semitones into and out of a chord) that triggers
	// smoothing, and the share of it an alternative must save
	VoiceLeadingMaxCost int     `json:"voice_leading_max_cost" yaml:"voice_leading_max_cost" mapstructure:"voice_leading_max_cost"`
	VoiceLeadingMinGain float64 `json:"voice_leading_min_gain" yaml:"voice_leading_min_gain" mapstructure:"voice_leading_min_gain"`
	// An alternative must fit the chroma at least this well relative to the
	// current chord
	AlternativeMinFit float64 `json:"alternative_min_fit" yaml:"alternative_min_fit" mapstructure:"alternative_min_fit"`

	MinSpanBeats      int     `json:"min_span_beats" yaml:"min_span_beats" mapstructure:"min_span_beats"`
	MinSpanConfidence float64 `json:"min_span_confidence" yaml:"min_span_confidence" mapstructure:"min_span_confidence"`

	ExtensionMinProbability float64 `json:"extension_min_probability" yaml:"extension_min_probability" mapstructure:"extension_min_probability"`
	// The seventh must reach this fraction of the beat's strongest chroma bin
	SeventhPresence float64 `json:"seventh_presence" yaml:"seventh_presence" mapstructure:"seventh_presence"`

	MergeMinSections int     `json:"merge_min_sections" yaml:"merge_min_sections" mapstructure:"merge_min_sections"`
	MergeMinBars     float64 `json:"merge_min_bars" yaml:"merge_min_bars" mapstructure:"merge_min_bars"`
}

// DefaultCorrectorParams returns the standard rule thresholds
func DefaultCorrectorParams() CorrectorParams {
	return CorrectorParams{
		PassingToneMaxStep:      2,
		VoiceLeadingMaxCost:     6,
		VoiceLeadingMinGain:     0.5,
		AlternativeMinFit:       0.8,
		MinSpanBeats:            1,
		MinSpanConfidence:       0.35,
		ExtensionMinProbability: 0.5,
		SeventhPresence:         0.3,
		MergeMinSections:        2,
		MergeMinBars:            4,
	}
}

// Correction records one rule-driven change to a chord event
type Correction struct {
	Index int    `json:"index"`
	From  string `json:"from"`
	To    string `json:"to"`
	Rule  string `json:"rule"`
}

// CorrectionInput is the labeled structure and decoded chord timeline
type CorrectionInput struct {
	Events      []tonal.ChordEvent
	Sections    []structure.Section
	Key         tonal.Key
	Genre       GenreProfile
	BeatsPerBar int
}

// Corrector applies music-theory rules to a decoded chord timeline. Rules run
// in a fixed order: bass disambiguation, functional nudges, cadence
// enforcement, voice-leading smoothing, minimum harmonic rhythm and genre
// extensions. Events are modified in place.
type Corrector struct {
	params CorrectorParams
	logger logging.Logger
}

// NewCorrector creates a corrector with default parameters
func NewCorrector() *Corrector {
	return NewCorrectorWithParams(DefaultCorrectorParams())
}

// NewCorrectorWithParams creates a corrector with custom parameters
func NewCorrectorWithParams(params CorrectorParams) *Corrector {
	return &Corrector{
		params: params,
		logger: logging.WithFields(logging.Fields{
			"component": "theory_corrector",
		}),
	}
}

type correctionRun struct {
	*Corrector
	in          CorrectionInput
	chords      []Chord
	corrections []Correction
}

// span is a run of consecutive events carrying the same chord, [start, end)
type span struct {
	start, end int
}

// Correct runs every rule and returns the changes made
func (c *Corrector) Correct(ctx context.Context, in CorrectionInput) ([]Correction, error) {
	logger := c.logger.WithFields(logging.Fields{
		"function": "Correct",
	})

	run := &correctionRun{Corrector: c, in: in, chords: make([]Chord, len(in.Events))}
	for i, ev := range in.Events {
		chord, err := ParseChord(ev.Chord)
		if err != nil {
			logger.Warn("Unparseable chord label, treating as no chord", logging.Fields{
				"index": i,
				"chord": ev.Chord,
			})
		}
		run.chords[i] = chord
	}

	rules := []struct {
		name  string
		apply func()
	}{
		{RuleBass, run.disambiguateBass},
		{"functional", run.functionalNudges},
		{RuleCadence, run.enforceCadences},
		{RuleVoiceLeading, run.smoothVoiceLeading},
		{RuleHarmonicRhythm, run.enforceHarmonicRhythm},
		{RuleExtension, run.addExtensions},
	}
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("theory correction (%s): %w", rule.name, err)
		}
		rule.apply()
	}

	logger.Debug("Chord timeline corrected", logging.Fields{
		"events":      len(in.Events),
		"corrections": len(run.corrections),
		"genre":       in.Genre.Name,
		"key":         in.Key.Name(),
	})
	return run.corrections, nil
}

// set replaces the chord of event i and records the change
func (r *correctionRun) set(i int, chord Chord, rule string) {
	if r.chords[i] == chord {
		return
	}
	ev := &r.in.Events[i]
	r.corrections = append(r.corrections, Correction{
		Index: i,
		From:  ev.Chord,
		To:    chord.String(),
		Rule:  rule,
	})
	r.chords[i] = chord
	ev.Chord = chord.String()
	ev.Root = chord.Root
	ev.Quality = chord.Quality
	ev.Corrected = true
	if ev.Bass != tonal.NoBass {
		ev.Inversion = tonal.Inversion(chord.Root, ev.Bass)
	}
}

func (r *correctionRun) setSpan(s span, chord Chord, rule string) {
	for i := s.start; i < s.end; i++ {
		r.set(i, chord, rule)
	}
}

// spans groups consecutive events with the same chord
func (r *correctionRun) spans() []span {
	var out []span
	for i := 0; i < len(r.chords); {
		j := i + 1
		for j < len(r.chords) && r.chords[j] == r.chords[i] {
			j++
		}
		out = append(out, span{start: i, end: j})
		i = j
	}
	return out
}

func (r *correctionRun) chordOf(s span) Chord {
	return r.chords[s.start]
}

// spanChroma averages the beat chroma over a span
func (r *correctionRun) spanChroma(s span) []float64 {
	out := make([]float64, chroma.NumPitchClasses)
	count := 0
	for i := s.start; i < s.end; i++ {
		if v := r.in.Events[i].BeatChroma; len(v) == chroma.NumPitchClasses {
			floats.Add(out, v)
			count++
		}
	}
	if count > 0 {
		floats.Scale(1/float64(count), out)
	}
	return out
}

// disambiguateBass snaps an out-of-chord bass note to the nearest chord tone
// unless it walks stepwise between its neighbours as a passing tone
func (r *correctionRun) disambiguateBass() {
	events := r.in.Events
	for i := range events {
		bass := events[i].Bass
		chord := r.chords[i]
		if bass == tonal.NoBass || chord.None || chord.Contains(bass) || r.passingTone(i) {
			continue
		}

		snapped := chord.Root
		best := chroma.NumPitchClasses
		for _, t := range chord.Tones() {
			if d := common.CircularDistance(bass, t, chroma.NumPitchClasses); d < best {
				best = d
				snapped = t
			}
		}

		r.corrections = append(r.corrections, Correction{
			Index: i,
			From:  events[i].Chord + "/" + chroma.PitchClassName(bass),
			To:    events[i].Chord + "/" + chroma.PitchClassName(snapped),
			Rule:  RuleBass,
		})
		events[i].Bass = snapped
		events[i].Inversion = tonal.Inversion(chord.Root, snapped)
		events[i].Corrected = true
	}
}

func (r *correctionRun) passingTone(i int) bool {
	events := r.in.Events
	if i == 0 || i+1 >= len(events) {
		return false
	}
	prev, next := events[i-1].Bass, events[i+1].Bass
	if prev == tonal.NoBass || next == tonal.NoBass {
		return false
	}
	in := signedStep(prev, events[i].Bass)
	out := signedStep(events[i].Bass, next)
	limit := r.params.PassingToneMaxStep
	stepwise := func(d int) bool { return d != 0 && d >= -limit && d <= limit }
	return stepwise(in) && stepwise(out) && (in > 0) == (out > 0)
}

// signedStep is the shortest signed interval from a to b, in (-6, 6]
func signedStep(a, b int) int {
	d := ((b-a)%12 + 12) % 12
	if d > 6 {
		d -= 12
	}
	return d
}

// functionalNudges corrects secondary-dominant shapes the genre does not
// favour back to the diatonic chord, and a dominant duplicated into the
// predominant slot (V V7 I) to the genre's predominant chord
func (r *correctionRun) functionalNudges() {
	key := r.in.Key
	if !key.Known() {
		return
	}

	spans := r.spans()
	for k := 0; k+1 < len(spans); k++ {
		cur, next := r.chordOf(spans[k]), r.chordOf(spans[k+1])
		if !cur.IsMajor() || !FifthBelow(cur, next) {
			continue
		}
		diatonic, ok := Diatonic(key, cur.Root)
		if !ok || !diatonic.IsMinor() {
			continue
		}
		if r.in.Genre.SecondaryDominantProbability >= 0.5 {
			continue
		}
		if cur.Quality.HasSeventh() {
			diatonic.Quality = tonal.ChordMin7
		}
		r.setSpan(spans[k], diatonic, RuleSecondaryDominant)
	}

	spans = r.spans()
	for k := 0; k+2 < len(spans); k++ {
		a, b, c := r.chordOf(spans[k]), r.chordOf(spans[k+1]), r.chordOf(spans[k+2])
		if !IsDominant(key, a) || !IsDominant(key, b) || !IsTonic(key, c) {
			continue
		}
		pre := DegreeChord(key, 3)
		if r.in.Genre.Predominant == "ii" && key.Mode == tonal.KeyModeMajor {
			pre = DegreeChord(key, 1)
		}
		r.setSpan(spans[k], pre, RulePredominant)
	}
}

// enforceCadences turns a minor v before a closing tonic into V at the end of
// each section
func (r *correctionRun) enforceCadences() {
	key := r.in.Key
	if !key.Known() || !r.in.Genre.PrefersCadence("authentic") {
		return
	}

	for _, group := range r.sectionSpans() {
		if len(group) < 2 {
			continue
		}
		last, pen := group[len(group)-1], group[len(group)-2]
		if !IsTonic(key, r.chordOf(last)) {
			continue
		}
		dom := r.chordOf(pen)
		if dom.None || dom.Root != Dominant(key) || dom.IsMajor() {
			continue
		}
		fixed := Chord{Root: dom.Root, Quality: tonal.ChordMajor}
		if dom.Quality.HasSeventh() {
			fixed.Quality = tonal.ChordDom7
		}
		r.setSpan(pen, fixed, RuleCadence)
	}
}

// sectionSpans splits the chord spans by section, clipping at section ends.
// Without sections the whole timeline is one group.
func (r *correctionRun) sectionSpans() [][]span {
	spans := r.spans()
	if len(r.in.Sections) == 0 {
		return [][]span{spans}
	}

	groups := make([][]span, len(r.in.Sections))
	for _, s := range spans {
		for i := s.start; i < s.end; {
			sec := r.sectionOf(r.in.Events[i].Timestamp)
			j := i + 1
			for j < s.end && r.sectionOf(r.in.Events[j].Timestamp) == sec {
				j++
			}
			if sec >= 0 {
				groups[sec] = append(groups[sec], span{start: i, end: j})
			}
			i = j
		}
	}
	return groups
}

func (r *correctionRun) sectionOf(t float64) int {
	for i, s := range r.in.Sections {
		if t >= s.StartTime && t < s.EndTime {
			return i
		}
	}
	return -1
}

// smoothVoiceLeading replaces a chord whose movement in and out exceeds the
// threshold with a triad that fits the chroma nearly as well and at least
// halves the movement
func (r *correctionRun) smoothVoiceLeading() {
	spans := r.spans()
	for k := 1; k+1 < len(spans); k++ {
		prev, cur, next := r.chordOf(spans[k-1]), r.chordOf(spans[k]), r.chordOf(spans[k+1])
		if prev.None || cur.None || next.None {
			continue
		}
		cost := VoiceLeadingCost(prev, cur) + VoiceLeadingCost(cur, next)
		if cost <= r.params.VoiceLeadingMaxCost {
			continue
		}

		v := r.spanChroma(spans[k])
		curFit := cur.Fit(v)
		if curFit <= 0 {
			continue
		}

		limit := (1 - r.params.VoiceLeadingMinGain) * float64(cost)
		best, bestCost, bestFit := NoChord, 0, 0.0
		for root := 0; root < chroma.NumPitchClasses; root++ {
			for _, q := range []tonal.ChordQuality{tonal.ChordMajor, tonal.ChordMinor} {
				alt := Chord{Root: root, Quality: q}
				if alt == cur {
					continue
				}
				fit := alt.Fit(v)
				if fit < r.params.AlternativeMinFit*curFit {
					continue
				}
				altCost := VoiceLeadingCost(prev, alt) + VoiceLeadingCost(alt, next)
				if float64(altCost) > limit {
					continue
				}
				if best.None || altCost < bestCost || (altCost == bestCost && fit > bestFit) {
					best, bestCost, bestFit = alt, altCost, fit
				}
			}
		}
		if !best.None {
			r.setSpan(spans[k], best, RuleVoiceLeading)
		}
	}
}

// enforceHarmonicRhythm absorbs very short, low-confidence chord spans into
// the preceding chord (the following one at the start of the track)
func (r *correctionRun) enforceHarmonicRhythm() {
	spans := r.spans()
	if len(spans) < 2 {
		return
	}
	for k, s := range spans {
		if s.end-s.start > r.params.MinSpanBeats || r.chordOf(s).None {
			continue
		}
		conf := 0.0
		for i := s.start; i < s.end; i++ {
			conf = max(conf, r.in.Events[i].Confidence)
		}
		if conf >= r.params.MinSpanConfidence {
			continue
		}

		neighbour := NoChord
		if k > 0 {
			neighbour = r.chords[s.start-1]
		} else {
			neighbour = r.chords[s.end]
		}
		if !neighbour.None {
			r.setSpan(s, neighbour, RuleHarmonicRhythm)
		}
	}
}

// addExtensions adds the genre's typical seventh on strong beats when the
// seventh is audible in the beat chroma
func (r *correctionRun) addExtensions() {
	bpb := r.in.BeatsPerBar
	if bpb <= 0 {
		bpb = 4
	}
	ext := r.in.Genre.Extensions

	for i, ev := range r.in.Events {
		strong := ev.Beat == 1 || (bpb == 4 && ev.Beat == 3)
		chord := r.chords[i]
		if !strong || chord.None || chord.Quality.HasSeventh() || chord.Quality == tonal.ChordSus4 {
			continue
		}

		var prob float64
		var seventh Chord
		switch {
		case IsDominant(r.in.Key, chord):
			prob, seventh = ext.Dominant, Chord{Root: chord.Root, Quality: tonal.ChordDom7}
		case chord.IsMajor():
			prob, seventh = ext.Major, Chord{Root: chord.Root, Quality: tonal.ChordMaj7}
		default:
			prob, seventh = ext.Minor, Chord{Root: chord.Root, Quality: tonal.ChordMin7}
		}
		if prob < r.params.ExtensionMinProbability || len(ev.BeatChroma) != chroma.NumPitchClasses {
			continue
		}

		tones := seventh.Tones()
		peak := floats.Max(ev.BeatChroma)
		if peak <= 0 || ev.BeatChroma[tones[len(tones)-1]] < r.params.SeventhPresence*peak {
			continue
		}
		r.set(i, seventh, RuleExtension)
	}
}
