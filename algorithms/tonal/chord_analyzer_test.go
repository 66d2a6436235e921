package tonal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
)

func pitchVector(pcs ...int) []float64 {
	v := make([]float64, chroma.NumPitchClasses)
	for _, pc := range pcs {
		v[pc] = 1
	}
	return v
}

// chordTrack lays out frames every 50ms and beats every 500ms; chordAt picks
// the chroma for a frame time
func chordTrack(beats int, chordAt func(t float64) []float64) ChordInput {
	in := ChordInput{TempoBPM: 120, BeatsPerBar: 4, Key: UnknownKey}
	for i := 0; i < beats; i++ {
		in.Beats = append(in.Beats, float64(i)*0.5)
	}
	for i := 0; i < beats*10; i++ {
		t := float64(i) * 0.05
		in.Timestamps = append(in.Timestamps, t)
		in.Chroma = append(in.Chroma, chordAt(t))
	}
	return in
}

func TestTemplateTable(t *testing.T) {
	assert.Len(t, Templates(false, false), 24)
	assert.Len(t, Templates(true, false), 60)
	assert.Len(t, Templates(true, true), 72)

	cMajor := Templates(false, false)[0]
	assert.Equal(t, "C", cMajor.Name)
	assert.InDelta(t, 1.0, floats.Norm(cMajor.Pattern, 2), 1e-12)
	assert.InDelta(t, 1.1, cMajor.Pattern[7]/cMajor.Pattern[0], 1e-12)
	assert.InDelta(t, 0.8, cMajor.Pattern[4]/cMajor.Pattern[0], 1e-12)

	aMinor := Templates(false, false)[12+9]
	assert.Equal(t, "Am", aMinor.Name)
	assert.InDelta(t, 0.9, aMinor.Pattern[4]/aMinor.Pattern[9], 1e-12)
	assert.InDelta(t, 0.8, aMinor.Pattern[0]/aMinor.Pattern[9], 1e-12)

	q, ok := ParseQualitySuffix("m7")
	require.True(t, ok)
	assert.Equal(t, ChordMin7, q)
	assert.Equal(t, "F#m7", ChordName(6, q))
}

func TestCMajorTriadDecodesToC(t *testing.T) {
	in := chordTrack(32, func(float64) []float64 { return pitchVector(0, 4, 7) })

	for _, key := range []Key{UnknownKey, {Root: 0, Mode: KeyModeMajor}} {
		in.Key = key
		result, err := NewChordAnalyzer().Analyze(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, result.Events, 32)

		for _, ev := range result.Events {
			assert.Equal(t, "C", ev.Chord, "beat at %.1fs with key %s", ev.Timestamp, key)
			assert.Equal(t, 0, ev.Root)
			assert.Greater(t, ev.Confidence, 0.5)
		}
	}
}

func TestChordChangeFollowsChroma(t *testing.T) {
	// C for 4 seconds, then G
	in := chordTrack(16, func(ts float64) []float64 {
		if ts < 4 {
			return pitchVector(0, 4, 7)
		}
		return pitchVector(7, 11, 2)
	})
	in.Key = Key{Root: 0, Mode: KeyModeMajor}

	result, err := NewChordAnalyzer().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "C", result.Events[2].Chord)
	assert.Equal(t, "G", result.Events[12].Chord)
	assert.Equal(t, "G", result.Events[15].Chord)
}

func TestProbabilityRowsSumToOne(t *testing.T) {
	rows := [][]float64{
		pitchVector(0, 4, 7),
		pitchVector(2, 5, 9),
		{0.1, 0.9, 0.3, 0.2, 0.05, 0.7, 0.2, 0.4, 0.1, 0.3, 0.8, 0.2},
		make([]float64, 12),
	}

	for _, rootOnly := range []bool{true, false} {
		params := DefaultChordParams()
		params.RootOnly = rootOnly
		ca := NewChordAnalyzerWithParams(params)

		for _, v := range rows {
			for _, key := range []Key{UnknownKey, {Root: 2, Mode: KeyModeMinor}} {
				score := ca.ScoreBeat(v, key)
				assert.Len(t, score.States, len(ca.States()))
				assert.InDelta(t, 1.0, floats.Sum(score.States), 1e-6)
				assert.InDelta(t, 1.0, floats.Sum(score.Templates), 1e-6)
			}
		}
	}
}

func TestKeyBiasSafetyValve(t *testing.T) {
	ca := NewChordAnalyzer()
	cMajor := Key{Root: 0, Mode: KeyModeMajor}

	silent := make([]float64, 12)
	with := ca.ScoreBeat(silent, cMajor)
	without := ca.ScoreBeat(silent, UnknownKey)
	assert.False(t, with.KeyApplied)
	assert.Equal(t, without.States, with.States)

	// a confident triad does take the bias
	assert.True(t, ca.ScoreBeat(pitchVector(0, 4, 7), cMajor).KeyApplied)

	// raise the threshold above any score a flat chroma can reach
	params := DefaultChordParams()
	params.KeySafety = 0.99
	strict := NewChordAnalyzerWithParams(params)
	flat := make([]float64, 12)
	for i := range flat {
		flat[i] = 1
	}
	with = strict.ScoreBeat(flat, cMajor)
	without = strict.ScoreBeat(flat, UnknownKey)
	assert.Less(t, with.BestRaw, 0.99)
	assert.False(t, with.KeyApplied)
	assert.Equal(t, without.States, with.States)

	// whole-track decode is identical with and without the key when every
	// beat is silent
	in := chordTrack(8, func(float64) []float64 { return make([]float64, 12) })
	a, err := ca.Analyze(context.Background(), in)
	require.NoError(t, err)
	in.Key = cMajor
	b, err := ca.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a.Rows, b.Rows)
	for _, ev := range b.Events {
		assert.Equal(t, NoChord, ev.Chord)
		assert.False(t, ev.HasChord())
		assert.Zero(t, ev.Confidence)
	}
}

func TestTransitionMatrix(t *testing.T) {
	roots := make([]int, 12)
	for i := range roots {
		roots[i] = i
	}
	trans := TransitionMatrix(roots, DefaultTransitionParams())

	for i := 0; i < 12; i++ {
		assert.InDelta(t, 1.0, floats.Sum(mat.Row(nil, i, trans)), 1e-12)
	}
	assert.InDelta(t, 0.8, trans.At(0, 0), 1e-12)
	assert.InDelta(t, 0.05, trans.At(0, 7), 1e-12)
	assert.InDelta(t, 0.05, trans.At(0, 5), 1e-12)
	assert.InDelta(t, 0.1/9, trans.At(0, 2), 1e-12)
	assert.InDelta(t, 0.05, trans.At(9, 2), 1e-12)
}

func TestViterbiSmoothsIsolatedBeat(t *testing.T) {
	trans := TransitionMatrix([]int{0, 7}, DefaultTransitionParams())
	rows := [][]float64{
		{0.7, 0.3}, {0.7, 0.3}, {0.45, 0.55}, {0.7, 0.3}, {0.7, 0.3},
	}

	path := Viterbi(rows, trans, 1e-9)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, path)

	// decoding is deterministic
	for i := 0; i < 5; i++ {
		assert.Equal(t, path, Viterbi(rows, trans, 1e-9))
	}

	// degenerate rows are regularized rather than breaking the recursion
	degenerate := [][]float64{{0, 0}, {0, 0}, {0, 1}}
	assert.Equal(t, []int{1, 1, 1}, Viterbi(degenerate, trans, 1e-9))

	assert.Nil(t, Viterbi(nil, trans, 1e-9))
	assert.Nil(t, Viterbi([][]float64{{1, 0, 0}}, trans, 1e-9))
}

func TestBeatSynchronize(t *testing.T) {
	in := chordTrack(4, func(ts float64) []float64 {
		if ts < 0.5 {
			return pitchVector(0)
		}
		return pitchVector(7)
	})
	beats := append(in.Beats, 10)

	synced := BeatSynchronize(in.Timestamps, in.Chroma, beats, 120, DefaultBeatSyncParams())
	require.Len(t, synced, 5)

	cva := chroma.NewChromaVectorAnalyzer()
	pc, _ := cva.FindDominantChroma(synced[0])
	assert.Equal(t, 0, pc)
	pc, _ = cva.FindDominantChroma(synced[1])
	assert.Equal(t, 7, pc)
	assert.InDelta(t, 1.0, synced[2][7], 1e-12)

	// no frames after 2s
	assert.Equal(t, make([]float64, 12), synced[4])
	assert.Empty(t, BeatSynchronize(in.Timestamps, in.Chroma, nil, 120, DefaultBeatSyncParams()))
}

func TestNumberBeats(t *testing.T) {
	beats := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5}

	bars, pos := NumberBeats(beats, []float64{1, 3}, 4)
	assert.Equal(t, []int{0, 0, 1, 1, 1, 1, 2, 2}, bars)
	assert.Equal(t, []int{1, 2, 1, 2, 3, 4, 1, 2}, pos)

	bars, pos = NumberBeats(beats, nil, 3)
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2, 3, 3}, bars)
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3, 1, 2}, pos)
}

func TestBassAndInversion(t *testing.T) {
	assert.Equal(t, 0, Inversion(0, 0))
	assert.Equal(t, 1, Inversion(0, 4))
	assert.Equal(t, 1, Inversion(9, 0))
	assert.Equal(t, 2, Inversion(0, 7))
	assert.Equal(t, 3, Inversion(0, 10))
	assert.Equal(t, 0, Inversion(0, 2))
	assert.Equal(t, 0, Inversion(0, NoBass))

	bass := attachBass([]float64{0, 1, 2}, []BassObservation{
		{Timestamp: 0.9, PitchClass: 4},
		{Timestamp: 1.3, PitchClass: 7},
		{Timestamp: 5, PitchClass: 99},
	})
	assert.Equal(t, []int{NoBass, 4, NoBass}, bass)

	in := chordTrack(4, func(float64) []float64 { return pitchVector(0, 4, 7) })
	in.Bass = []BassObservation{{Timestamp: 0.5, PitchClass: 4}}
	result, err := NewChordAnalyzer().Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Events[1].Bass)
	assert.Equal(t, 1, result.Events[1].Inversion)
	assert.Equal(t, NoBass, result.Events[0].Bass)
}

func TestAnalyzeEdgeCases(t *testing.T) {
	result, err := NewChordAnalyzer().Analyze(context.Background(), ChordInput{})
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Len(t, result.States, 12)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := chordTrack(4, func(float64) []float64 { return pitchVector(0, 4, 7) })
	_, err = NewChordAnalyzer().Analyze(ctx, in)
	assert.ErrorIs(t, err, context.Canceled)
}
