package structure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// SegmentationTestSuite runs the whole structure chain on a synthetic
// 60 second AABB track: two 15 second blocks, each played twice.
type SegmentationTestSuite struct {
	suite.Suite
	logger logging.Logger

	bundle *features.Bundle
	frames *features.Frames
	matrix *Matrix
	seg    *Segmentation

	vectors  *VectorCache
	sections []Section
	clusters []Cluster
	flags    []ReviewFlag
}

func (s *SegmentationTestSuite) SetupSuite() {
	s.logger = logging.WithFields(logging.Fields{
		"component": "segmentation_test_suite",
	})

	bundle, err := features.Synthesize(features.DefaultSynthParams())
	s.Require().NoError(err)
	s.bundle = bundle
	s.frames = bundle.Frames()

	ctx := context.Background()
	s.matrix, err = BuildMatrix(ctx, s.frames, DefaultSimilarityParams())
	s.Require().NoError(err)

	s.vectors = NewVectorCache(0)
	detector := NewNoveltyDetectorWithParams(DefaultNoveltyParams(), nil, s.vectors)
	s.seg, err = detector.Detect(ctx, s.matrix, s.frames, Timing{
		TempoBPM: bundle.BeatGrid.TempoBPM,
		Beats:    bundle.BeatGrid.BeatTimestamps,
	})
	s.Require().NoError(err)

	clusterer := NewClusterer()
	s.sections = clusterer.Sections(s.seg, s.frames)
	s.clusters, err = clusterer.Cluster(ctx, s.matrix, s.sections, s.seg)
	s.Require().NoError(err)

	key, _ := tonal.ParseKey(bundle.DetectedKey, bundle.DetectedMode)
	s.flags, err = NewLabelerWithParams(DefaultLabelParams(), s.vectors).Label(ctx, LabelInput{
		Frames:      s.frames,
		Sections:    s.sections,
		Clusters:    s.clusters,
		TempoBPM:    bundle.BeatGrid.TempoBPM,
		BeatsPerBar: features.BeatsPerBar(bundle.BeatGrid.TimeSignature),
		GlobalKey:   key,
	})
	s.Require().NoError(err)

	s.logger.Debug("Segmentation fixture ready", logging.Fields{
		"boundaries": s.seg.Boundaries,
		"clusters":   len(s.clusters),
	})
}

func (s *SegmentationTestSuite) TestBoundariesAtBlockEdges() {
	s.Require().Len(s.seg.Boundaries, 5)

	expected := []int{0, 150, 300, 450, 599}
	// one beat at 120 BPM and a 0.1s hop
	const tolerance = 5
	for i, b := range s.seg.Boundaries {
		s.InDelta(expected[i], b, tolerance, "boundary %d", i)
	}
	s.False(s.seg.Retried)
}

func (s *SegmentationTestSuite) TestLoudnessJumpIsHard() {
	s.True(s.seg.IsHard(s.seg.Boundaries[2]))
	s.False(s.seg.IsHard(s.seg.Boundaries[1]))
	s.False(s.seg.IsHard(s.seg.Boundaries[3]))
}

func (s *SegmentationTestSuite) TestFourSectionsPartitionTrack() {
	s.Require().Len(s.sections, 4)
	s.Equal(0, s.sections[0].StartFrame)
	s.Equal(s.frames.Len(), s.sections[3].EndFrame)

	starts := []float64{0, 15, 30, 45}
	for i, sec := range s.sections {
		s.InDelta(starts[i], sec.StartTime, 0.5)
		if i > 0 {
			s.Equal(s.sections[i-1].EndFrame, sec.StartFrame)
		}
	}
}

func (s *SegmentationTestSuite) TestRepeatedBlocksShareClusters() {
	s.Require().Len(s.clusters, 2)
	s.Equal(s.sections[0].ClusterID, s.sections[1].ClusterID)
	s.Equal(s.sections[2].ClusterID, s.sections[3].ClusterID)
	s.NotEqual(s.sections[0].ClusterID, s.sections[2].ClusterID)
}

func (s *SegmentationTestSuite) TestLouderRepeatedBlockIsChorus() {
	labels := make([]Label, len(s.sections))
	variants := make([]int, len(s.sections))
	for i, sec := range s.sections {
		labels[i] = sec.Label
		variants[i] = sec.Variant
		s.NotEmpty(sec.Reason)
		s.NotEmpty(sec.Key)
		s.GreaterOrEqual(sec.Confidence, 0.0)
		s.LessOrEqual(sec.Confidence, 1.0)
	}

	s.Equal([]Label{LabelVerse, LabelVerse, LabelChorus, LabelChorus}, labels)
	s.Equal([]int{1, 2, 1, 2}, variants)
	s.Greater(s.sections[2].Confidence, 0.5)
	s.Empty(s.flags)
}

func (s *SegmentationTestSuite) TestSignatures() {
	a := s.sections[0].Signature
	b := s.sections[2].Signature

	s.InDelta(0.5, a.AvgRMS, 1e-9)
	s.InDelta(1.0, b.RelativeEnergy, 1e-9)
	s.InDelta(0.5, a.RelativeEnergy, 1e-9)
	s.True(a.HasVocals)
	s.False(a.VocalEstimated)
	s.Equal(2, a.RepetitionCount)
	s.False(a.IsUnique)
	s.InDelta(7.5, a.DurationBars, 0.3)
	s.InDelta(15.0, a.DurationSeconds, 0.3)
}

func (s *SegmentationTestSuite) TestCacheWasUsed() {
	hits, _ := s.vectors.Stats()
	s.Positive(hits)
}

func TestSegmentationTestSuite(t *testing.T) {
	suite.Run(t, new(SegmentationTestSuite))
}
