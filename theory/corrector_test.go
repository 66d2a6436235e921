package theory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/structure"
)

// timeline builds one event per beat at 120 BPM in 4/4 whose beat chroma holds
// the chord tones
func timeline(labels ...string) []tonal.ChordEvent {
	events := make([]tonal.ChordEvent, len(labels))
	for i, label := range labels {
		chord := MustParseChord(label)
		v := make([]float64, chroma.NumPitchClasses)
		for _, pc := range chord.Tones() {
			v[pc] = 1
		}
		events[i] = tonal.ChordEvent{
			Timestamp:  float64(i) * 0.5,
			Bar:        i/4 + 1,
			Beat:       i%4 + 1,
			Chord:      label,
			Root:       chord.Root,
			Quality:    chord.Quality,
			Confidence: 0.9,
			Bass:       tonal.NoBass,
			BeatChroma: v,
		}
	}
	return events
}

// withoutChroma drops the beat chroma so only chord-symbol rules fire
func withoutChroma(events []tonal.ChordEvent) []tonal.ChordEvent {
	for i := range events {
		events[i].BeatChroma = nil
	}
	return events
}

func chordsOf(events []tonal.ChordEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Chord
	}
	return out
}

func byRule(corrections []Correction, rule string) []Correction {
	var out []Correction
	for _, c := range corrections {
		if c.Rule == rule {
			out = append(out, c)
		}
	}
	return out
}

func correct(t *testing.T, in CorrectionInput) []Correction {
	t.Helper()
	corrections, err := NewCorrector().Correct(context.Background(), in)
	require.NoError(t, err)
	return corrections
}

func TestBassSnapsToNearestChordTone(t *testing.T) {
	events := timeline("C", "C", "C")
	events[1].Bass = 6

	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})

	require.Len(t, corrections, 1)
	assert.Equal(t, Correction{Index: 1, From: "C/F#", To: "C/G", Rule: RuleBass}, corrections[0])
	assert.Equal(t, 7, events[1].Bass)
	assert.Equal(t, 2, events[1].Inversion)
	assert.True(t, events[1].Corrected)
}

func TestBassPassingToneIsKept(t *testing.T) {
	events := timeline("C", "C", "C")
	events[0].Bass, events[1].Bass, events[2].Bass = 0, 2, 4

	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})

	assert.Empty(t, corrections)
	assert.Equal(t, 2, events[1].Bass)
}

func TestSecondaryDominantFollowsGenre(t *testing.T) {
	labels := []string{"C", "C", "A", "A", "Dm", "Dm", "G", "G", "C"}

	pop := timeline(labels...)
	corrections := correct(t, CorrectionInput{Events: pop, Key: cMajor, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, []string{"C", "C", "Am", "Am", "Dm", "Dm", "G", "G", "C"}, chordsOf(pop))
	require.Len(t, corrections, 2)
	for _, c := range corrections {
		assert.Equal(t, RuleSecondaryDominant, c.Rule)
		assert.Equal(t, "A", c.From)
		assert.Equal(t, "Am", c.To)
	}

	jazz := timeline(labels...)
	corrections = correct(t, CorrectionInput{Events: jazz, Key: cMajor, Genre: DefaultGenres().Lookup("jazz")})
	assert.Empty(t, corrections)
	assert.Equal(t, labels, chordsOf(jazz))
}

func TestSecondaryDominantNeedsKey(t *testing.T) {
	events := withoutChroma(timeline("C", "A", "Dm", "G", "C"))
	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})
	assert.Empty(t, byRule(corrections, RuleSecondaryDominant))
}

func TestDuplicatedDominantBecomesPredominant(t *testing.T) {
	labels := []string{"C", "C", "G", "G", "G7", "G7", "C", "C"}

	pop := withoutChroma(timeline(labels...))
	corrections := correct(t, CorrectionInput{Events: pop, Key: cMajor, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, []string{"C", "C", "F", "F", "G7", "G7", "C", "C"}, chordsOf(pop))
	assert.Len(t, byRule(corrections, RulePredominant), 2)

	jazz := withoutChroma(timeline(labels...))
	corrections = correct(t, CorrectionInput{Events: jazz, Key: cMajor, Genre: DefaultGenres().Lookup("jazz")})
	assert.Equal(t, []string{"C", "C", "Dm", "Dm", "G7", "G7", "C", "C"}, chordsOf(jazz))
	assert.Len(t, byRule(corrections, RulePredominant), 2)
}

func TestCadenceEnforcedAtSectionEnd(t *testing.T) {
	labels := []string{"C", "C", "F", "F", "Gm", "Gm", "C", "C"}
	sections := []structure.Section{
		{Index: 0, StartTime: 0, EndTime: 2},
		{Index: 1, StartTime: 2, EndTime: 4},
	}

	events := withoutChroma(timeline(labels...))
	corrections := correct(t, CorrectionInput{Events: events, Sections: sections, Key: cMajor, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, []string{"C", "C", "F", "F", "G", "G", "C", "C"}, chordsOf(events))
	assert.Len(t, byRule(corrections, RuleCadence), 2)

	whole := withoutChroma(timeline(labels...))
	correct(t, CorrectionInput{Events: whole, Key: cMajor, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, "G", whole[4].Chord)

	plagalOnly := GenreProfile{Name: "hymn", Cadences: []string{"plagal"}, Predominant: "IV"}
	kept := withoutChroma(timeline(labels...))
	corrections = correct(t, CorrectionInput{Events: kept, Key: cMajor, Genre: plagalOnly})
	assert.Empty(t, corrections)
	assert.Equal(t, "Gm", kept[4].Chord)
}

func TestVoiceLeadingSmoothsLeap(t *testing.T) {
	events := timeline("C", "C", "F#", "F#", "C", "C")
	// E minor colour with a faint C#: F# keeps a small fit
	for _, i := range []int{2, 3} {
		v := make([]float64, chroma.NumPitchClasses)
		v[4], v[7], v[11], v[1] = 1, 1, 1, 0.5
		events[i].BeatChroma = v
	}

	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})

	leading := byRule(corrections, RuleVoiceLeading)
	require.Len(t, leading, 2)
	assert.Equal(t, "F#", leading[0].From)
	assert.Equal(t, "C", leading[0].To)
	assert.Equal(t, []string{"C", "C", "C", "C", "C", "C"}, chordsOf(events))
}

func TestVoiceLeadingLeavesSmoothMotion(t *testing.T) {
	events := timeline("C", "C", "Am", "Am", "F", "F", "G", "G")
	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})
	assert.Empty(t, byRule(corrections, RuleVoiceLeading))
}

func TestShortLowConfidenceSpanAbsorbed(t *testing.T) {
	events := withoutChroma(timeline("C", "C", "C", "G", "C", "C"))
	events[3].Confidence = 0.2
	corrections := correct(t, CorrectionInput{Events: events, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, []string{"C", "C", "C", "C", "C", "C"}, chordsOf(events))
	assert.Len(t, byRule(corrections, RuleHarmonicRhythm), 1)

	leading := withoutChroma(timeline("G", "C", "C", "C"))
	leading[0].Confidence = 0.1
	correct(t, CorrectionInput{Events: leading, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})
	assert.Equal(t, "C", leading[0].Chord)

	confident := withoutChroma(timeline("C", "C", "C", "G", "C", "C"))
	corrections = correct(t, CorrectionInput{Events: confident, Key: tonal.UnknownKey, Genre: DefaultGenres().Lookup("pop")})
	assert.Empty(t, corrections)
}

func TestGenreExtensionsOnStrongBeats(t *testing.T) {
	build := func() []tonal.ChordEvent {
		events := timeline("C", "C", "G", "G", "C", "C")
		events[0].BeatChroma[11] = 0.5
		events[1].BeatChroma[11] = 0.5
		events[2].BeatChroma[5] = 0.6
		return events
	}

	jazz := build()
	corrections := correct(t, CorrectionInput{Events: jazz, Key: cMajor, Genre: DefaultGenres().Lookup("jazz"), BeatsPerBar: 4})
	assert.Equal(t, []string{"Cmaj7", "C", "G7", "G", "C", "C"}, chordsOf(jazz))
	assert.Len(t, byRule(corrections, RuleExtension), 2)

	pop := build()
	corrections = correct(t, CorrectionInput{Events: pop, Key: cMajor, Genre: DefaultGenres().Lookup("pop"), BeatsPerBar: 4})
	assert.Empty(t, byRule(corrections, RuleExtension))
}

func TestCorrectHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCorrector().Correct(ctx, CorrectionInput{Events: timeline("C", "G"), Key: cMajor})
	assert.ErrorIs(t, err, context.Canceled)
}

func section(label structure.Label, start, end float64) structure.Section {
	return structure.Section{
		StartFrame: int(start * 10),
		EndFrame:   int(end * 10),
		StartTime:  start,
		EndTime:    end,
		Label:      label,
		Reason:     string(label),
	}
}

func TestMergeSectionsShortWithoutCadence(t *testing.T) {
	in := MergeInput{
		Sections: []structure.Section{
			section(structure.LabelIntro, 0, 4),
			section(structure.LabelVerse, 4, 20),
			section(structure.LabelChorus, 20, 36),
		},
		Key:         tonal.UnknownKey,
		TempoBPM:    120,
		BeatsPerBar: 4,
	}
	c := NewCorrector()

	merged, merges := c.MergeSections(in)
	require.Len(t, merged, 2)
	require.Len(t, merges, 1)
	assert.Equal(t, "verse", merges[0].Kept)

	assert.Equal(t, structure.LabelVerse, merged[0].Label)
	assert.Equal(t, 0.0, merged[0].StartTime)
	assert.Equal(t, 20.0, merged[0].EndTime)
	assert.Equal(t, 0, merged[0].StartFrame)
	assert.InDelta(t, 10.0, merged[0].Signature.DurationBars, 1e-9)
	assert.Equal(t, 1, merged[1].Index)
	assert.Equal(t, 1, merged[0].Variant)

	// original slice untouched
	assert.Equal(t, structure.LabelIntro, in.Sections[0].Label)

	in.Sections = merged
	again, merges := c.MergeSections(in)
	assert.Empty(t, merges)
	assert.Equal(t, merged, again)
}

func TestMergeSectionsCombinesSignatures(t *testing.T) {
	intro := section(structure.LabelIntro, 0, 4)
	intro.Signature = structure.Signature{
		AvgRMS:         0.2,
		MaxRMS:         0.9,
		VocalRatio:     0,
		RelativeEnergy: 0.25,
		PositionRatio:  2.0 / 40,
		IsUnique:       true,
	}
	verse := section(structure.LabelVerse, 4, 20)
	verse.Signature = structure.Signature{
		AvgRMS:            0.6,
		MaxRMS:            0.7,
		VocalRatio:        0.8,
		HasVocals:         true,
		RelativeEnergy:    0.75,
		PositionRatio:     12.0 / 40,
		SpectralFluxTrend: 0.3,
	}
	in := MergeInput{
		Sections:    []structure.Section{intro, verse, section(structure.LabelChorus, 20, 40)},
		Key:         tonal.UnknownKey,
		TempoBPM:    120,
		BeatsPerBar: 4,
	}

	merged, merges := NewCorrector().MergeSections(in)
	require.Len(t, merges, 1)
	sig := merged[0].Signature

	// weights 4s and 16s
	assert.InDelta(t, 0.52, sig.AvgRMS, 1e-9)
	assert.InDelta(t, 0.64, sig.VocalRatio, 1e-9)
	assert.InDelta(t, 0.65, sig.RelativeEnergy, 1e-9)
	assert.InDelta(t, 10.0/40, sig.PositionRatio, 1e-9)
	assert.Equal(t, 0.9, sig.MaxRMS)
	assert.True(t, sig.HasVocals)
	assert.Equal(t, 0.3, sig.SpectralFluxTrend)
	assert.InDelta(t, 20.0, sig.DurationSeconds, 1e-9)
}

func TestMergeSectionsRespectsCadence(t *testing.T) {
	// 8 beats in the intro ending G7 -> C
	events := timeline("C", "C", "F", "F", "G7", "G7", "C", "C")
	in := MergeInput{
		Sections: []structure.Section{
			section(structure.LabelIntro, 0, 4),
			section(structure.LabelVerse, 4, 20),
			section(structure.LabelChorus, 20, 36),
		},
		Events:      events,
		Key:         cMajor,
		TempoBPM:    120,
		BeatsPerBar: 4,
	}

	merged, merges := NewCorrector().MergeSections(in)
	assert.Empty(t, merges)
	assert.Len(t, merged, 3)
}

func TestMergeSectionsKeepsMinimumCount(t *testing.T) {
	in := MergeInput{
		Sections: []structure.Section{
			section(structure.LabelIntro, 0, 2),
			section(structure.LabelOutro, 2, 4),
		},
		Key:      tonal.UnknownKey,
		TempoBPM: 120,
	}
	merged, merges := NewCorrector().MergeSections(in)
	assert.Empty(t, merges)
	assert.Len(t, merged, 2)
}
