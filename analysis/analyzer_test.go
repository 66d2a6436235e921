package analysis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/structure"
	"github.com/RyanBlaney/sonido-forma/theory"
)

func aabb(t *testing.T) *features.Bundle {
	t.Helper()
	bundle, err := features.Synthesize(features.DefaultSynthParams())
	require.NoError(t, err)
	return bundle
}

func TestAnalyzeAABB(t *testing.T) {
	res, err := New(DefaultConfig()).Analyze(context.Background(), aabb(t))
	require.NoError(t, err)

	require.Len(t, res.Sections, 4)
	starts := []float64{0, 15, 30, 45}
	for i, s := range res.Sections {
		assert.InDelta(t, starts[i], s.StartTime, 0.5)
		assert.Equal(t, i, s.Index)
	}
	assert.Equal(t, res.Sections[0].ClusterID, res.Sections[1].ClusterID)
	assert.Equal(t, res.Sections[2].ClusterID, res.Sections[3].ClusterID)
	assert.NotEqual(t, res.Sections[0].ClusterID, res.Sections[2].ClusterID)
	assert.Empty(t, res.Merges)

	require.Len(t, res.Boundaries, 5)
	assert.Equal(t, 0, res.Boundaries[0].Frame)
	assert.Equal(t, 599, res.Boundaries[4].Frame)

	// 60 seconds at 120 BPM
	assert.Len(t, res.Chords, 120)
	assert.Equal(t, 1, res.Chords[0].Bar)
	assert.Equal(t, 1, res.Chords[0].Beat)

	assert.Equal(t, "C major", res.Key.Name())
	assert.Equal(t, "bundle", res.Diagnostics.KeySource)
	assert.Equal(t, theory.DefaultGenre, res.Diagnostics.Genre)
	assert.Equal(t, 1, res.Diagnostics.DownsampleFactor)
	assert.Equal(t, "4/4", res.TimeSignature)
	assert.Nil(t, res.Novelty)
	for _, stage := range Stages {
		assert.Contains(t, res.Diagnostics.StageMillis, stage)
	}
}

func TestAnalyzeDownsampledTrack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAnalysisFrames = 300

	res, err := New(cfg).Analyze(context.Background(), aabb(t))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Diagnostics.DownsampleFactor)
	assert.Equal(t, 300, res.Diagnostics.AnalysisFrames)
	require.NotEmpty(t, res.Sections)
	assert.Equal(t, 0, res.Sections[0].StartFrame)
	assert.Equal(t, 600, res.Sections[len(res.Sections)-1].EndFrame)
	for i := 1; i < len(res.Sections); i++ {
		assert.Equal(t, res.Sections[i-1].EndFrame, res.Sections[i].StartFrame)
	}
	assert.Equal(t, 599, res.Boundaries[len(res.Boundaries)-1].Frame)

	last := res.Sections[len(res.Sections)-1]
	assert.InDelta(t, 60.0, last.EndTime, 1e-9)
}

func TestAnalyzeMergedSectionsKeepBoundariesInStep(t *testing.T) {
	params := features.DefaultSynthParams()
	params.Pattern = "ABCDABCD"
	params.BlockSeconds = 6
	bundle, err := features.Synthesize(params)
	require.NoError(t, err)

	res, err := New(DefaultConfig()).Analyze(context.Background(), bundle)
	require.NoError(t, err)
	require.NotEmpty(t, res.Merges)

	require.Len(t, res.Boundaries, len(res.Sections)+1)
	for i, s := range res.Sections {
		assert.Equal(t, s.StartFrame, res.Boundaries[i].Frame)
		assert.InDelta(t, s.StartTime, res.Boundaries[i].Time, 1e-9)
	}
	assert.Equal(t, 479, res.Boundaries[len(res.Boundaries)-1].Frame)

	for _, c := range res.Clusters {
		for _, m := range c.Sections {
			sig := res.Sections[m].Signature
			assert.Equal(t, len(c.Sections), sig.RepetitionCount)
			assert.Equal(t, len(c.Sections) == 1, sig.IsUnique)
		}
	}
}

func TestResultJSONRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeNovelty = true
	bundle := aabb(t)
	bundle.BassNotes = []features.BassNote{{Timestamp: 0, PitchClass: 0}, {Timestamp: 16, PitchClass: 4}}

	res, err := New(cfg).Analyze(context.Background(), bundle)
	require.NoError(t, err)
	require.NotEmpty(t, res.Novelty)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *res, decoded)
}

func TestStartStreamsProgress(t *testing.T) {
	job := New(DefaultConfig()).Start(context.Background(), aabb(t))

	var events []ProgressEvent
	for ev := range job.Events() {
		events = append(events, ev)
	}
	res, err := job.Wait()
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, events, len(Stages))
	for i, ev := range events {
		assert.Equal(t, Stages[i], ev.Stage)
		if i > 0 {
			assert.Greater(t, ev.Percent, events[i-1].Percent)
			assert.GreaterOrEqual(t, ev.Elapsed, events[i-1].Elapsed)
		}
	}
	assert.Equal(t, 100, events[len(events)-1].Percent)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig()).Analyze(ctx, aabb(t))
	assert.ErrorIs(t, err, context.Canceled)

	job := New(DefaultConfig()).Start(ctx, aabb(t))
	_, err = job.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	_, open := <-job.Events()
	assert.False(t, open)
}

func TestAnalyzeDegenerateInput(t *testing.T) {
	a := New(DefaultConfig())

	empty, err := a.Analyze(context.Background(), &features.Bundle{})
	require.NoError(t, err)
	assert.Empty(t, empty.Sections)
	assert.Empty(t, empty.Chords)
	assert.False(t, empty.Key.Known())
	assert.Equal(t, "none", empty.Diagnostics.KeySource)

	nilBundle, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, nilBundle.Sections)

	silent := &features.Bundle{FrameHopSeconds: 0.1}
	for i := 0; i < 100; i++ {
		silent.ChromaFrames = append(silent.ChromaFrames, features.ChromaFrame{
			Timestamp: float64(i) * 0.1,
			Chroma:    make([]float64, 12),
		})
	}
	res, err := a.Analyze(context.Background(), silent)
	require.NoError(t, err)
	require.NotEmpty(t, res.Sections)
	assert.Equal(t, 100, res.Sections[len(res.Sections)-1].EndFrame)
	assert.False(t, res.Key.Known())
	for _, c := range res.Chords {
		assert.Equal(t, "N", c.Chord)
	}
}

func TestAnalyzeInfersMissingBeatGrid(t *testing.T) {
	bundle := aabb(t)
	bundle.BeatGrid = features.BeatGrid{TempoBPM: 120}

	res, err := New(DefaultConfig()).Analyze(context.Background(), bundle)
	require.NoError(t, err)

	assert.Contains(t, res.Diagnostics.DerivedTracks, "beats")
	assert.Equal(t, 120.0, res.TempoBPM)
	assert.Len(t, res.Chords, 120)
	assert.Len(t, res.Sections, 4)
}

func TestAnalyzeRejectsMalformedBundle(t *testing.T) {
	bundle := &features.Bundle{ChromaFrames: []features.ChromaFrame{{Chroma: []float64{1, 2, 3}}}}
	_, err := New(DefaultConfig()).Analyze(context.Background(), bundle)

	var bundleErr *features.BundleError
	assert.ErrorAs(t, err, &bundleErr)
}

func TestGenreSelection(t *testing.T) {
	bundle := aabb(t)
	bundle.Genre = "Jazz"

	res, err := New(DefaultConfig()).Analyze(context.Background(), bundle)
	require.NoError(t, err)
	assert.Equal(t, "jazz", res.Diagnostics.Genre)

	cfg := DefaultConfig()
	cfg.Genre = "edm"
	res, err = New(cfg, WithGenres(theory.DefaultGenres())).Analyze(context.Background(), bundle)
	require.NoError(t, err)
	assert.Equal(t, "edm", res.Diagnostics.Genre)
}

func TestRebuildClusters(t *testing.T) {
	clusters := rebuildClusters([]structure.Section{{ClusterID: 2}, {ClusterID: 0}, {ClusterID: 2}})
	assert.Equal(t, []structure.Cluster{{ID: 0, Sections: []int{1}}, {ID: 2, Sections: []int{0, 2}}}, clusters)
}

func TestSectionBoundaries(t *testing.T) {
	frames := &features.Frames{
		Hop:        0.5,
		Timestamps: []float64{0, 0.5, 1, 1.5, 2, 2.5},
		Chroma:     make([][]float64, 6),
	}
	detected := []Boundary{
		{Frame: 0, Time: 0, Strength: 1, Hard: true},
		{Frame: 2, Time: 1, Strength: 0.4},
		{Frame: 4, Time: 2, Strength: 0.8, Hard: true},
		{Frame: 5, Time: 2.5, Strength: 1, Hard: true},
	}
	sections := []structure.Section{
		{StartFrame: 0, EndFrame: 4, StartTime: 0, EndTime: 2},
		{StartFrame: 4, EndFrame: 6, StartTime: 2, EndTime: 3},
	}

	got := sectionBoundaries(sections, detected, frames)
	assert.Equal(t, []Boundary{detected[0], detected[2], detected[3]}, got)
	assert.Empty(t, sectionBoundaries(nil, detected, frames))
}
