package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
	"github.com/RyanBlaney/sonido-forma/structure"
	"github.com/RyanBlaney/sonido-forma/theory"
)

// Analyzer runs the structure and chord pipeline over feature bundles. An
// Analyzer holds configuration only; every run owns its caches, so one
// Analyzer may serve concurrent runs on different bundles.
type Analyzer struct {
	cfg    Config
	genres theory.GenreLookup
	logger logging.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger replaces the analyzer's logger
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithGenres sets the genre profile source consulted by the theory corrector
func WithGenres(genres theory.GenreLookup) Option {
	return func(a *Analyzer) {
		a.genres = genres
	}
}

// New creates an analyzer
func New(cfg Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "analysis_pipeline",
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.genres == nil {
		a.genres = theory.DefaultGenres()
	}
	return a
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze runs the whole pipeline synchronously
func (a *Analyzer) Analyze(ctx context.Context, bundle *features.Bundle) (*Result, error) {
	return a.run(ctx, bundle, nil)
}

// run is one analysis; state lives on the stack so runs never share caches
func (a *Analyzer) run(ctx context.Context, bundle *features.Bundle, progress progressFunc) (*Result, error) {
	logger := a.logger.WithFields(logging.Fields{
		"function": "Analyze",
	})

	if bundle == nil {
		bundle = &features.Bundle{}
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	stageStart := start
	res := &Result{
		Diagnostics: Diagnostics{StageMillis: make(map[Stage]float64, len(Stages))},
	}
	done := func(stage Stage) error {
		now := time.Now()
		res.Diagnostics.StageMillis[stage] = float64(now.Sub(stageStart).Microseconds()) / 1000
		stageStart = now
		if progress != nil {
			progress(ProgressEvent{Stage: stage, Percent: stage.Percent(), Elapsed: now.Sub(start)})
		}
		if stage == StageCorrection {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analysis after %s: %w", stage, err)
		}
		return nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	// features
	frames := bundle.Frames()
	grid := bundle.ResolveBeatGrid(frames)
	beatsPerBar := features.BeatsPerBar(grid.TimeSignature)
	key, keySource := a.resolveKey(bundle, frames)
	genre := a.resolveGenre(bundle)

	factor := features.DownsampleFactor(frames.Len(), a.cfg.MaxAnalysisFrames)
	work := features.Downsample(frames, factor)

	res.Key = key
	res.TempoBPM = grid.TempoBPM
	res.TimeSignature = grid.TimeSignature
	res.Diagnostics.Frames = frames.Len()
	res.Diagnostics.AnalysisFrames = work.Len()
	res.Diagnostics.DownsampleFactor = factor
	res.Diagnostics.ReplacedSamples = frames.Replaced
	res.Diagnostics.DerivedTracks = append([]string(nil), frames.Derived...)
	if grid.Inferred {
		res.Diagnostics.DerivedTracks = append(res.Diagnostics.DerivedTracks, "beats")
	}
	res.Diagnostics.HasMFCC = frames.HasMFCC()
	res.Diagnostics.HasVocal = frames.HasVocal()
	res.Diagnostics.KeySource = keySource
	res.Diagnostics.Genre = genre.Name

	if frames.Replaced > 0 {
		logger.Warn("Replaced non-finite feature samples", logging.Fields{
			"replaced": frames.Replaced,
		})
	}
	if frames.Len() == 0 {
		logger.Warn("Bundle has no chroma frames, result will be empty")
	}
	logger.Debug("Features prepared", logging.Fields{
		"frames":            frames.Len(),
		"analysis_frames":   work.Len(),
		"downsample_factor": factor,
		"tempo_bpm":         grid.TempoBPM,
		"time_signature":    grid.TimeSignature,
		"key":               key.Name(),
		"key_source":        keySource,
		"genre":             genre.Name,
	})
	if err := done(StageFeatures); err != nil {
		return nil, err
	}

	// similarity
	matrix, err := structure.BuildMatrix(ctx, work, a.cfg.Similarity)
	if err != nil {
		return nil, err
	}
	if err := done(StageSimilarity); err != nil {
		return nil, err
	}

	// novelty
	detector := structure.NewNoveltyDetectorWithParams(a.cfg.Novelty, structure.NewKernelCache(a.cfg.Novelty.TaperRatio), nil)
	seg, err := detector.Detect(ctx, matrix, work, structure.Timing{
		TempoBPM: grid.TempoBPM,
		Beats:    grid.BeatTimestamps,
	})
	if err != nil {
		return nil, err
	}
	res.Diagnostics.Sensitivity = seg.Sensitivity
	res.Diagnostics.Retried = seg.Retried
	res.Diagnostics.Refined = seg.Refined
	if a.cfg.IncludeNovelty {
		res.Novelty = seg.Novelty
	}
	if err := done(StageNovelty); err != nil {
		return nil, err
	}

	// clustering
	clusterer := structure.NewClustererWithParams(a.cfg.Cluster)
	sections := clusterer.Sections(seg, work)
	var sim structure.Similarity = matrix
	if factor > 1 {
		seg = upsampleSegmentation(seg, factor, frames.Len())
		upsampleSections(sections, factor, frames)
		if a.cfg.FullResolutionClustering {
			sim = structure.NewFrameComparer(frames, a.cfg.Similarity)
		}
	}
	clusters, err := clusterer.Cluster(ctx, clusterSimilarity(sim, factor, a.cfg.FullResolutionClustering), sections, seg)
	if err != nil {
		return nil, err
	}
	if err := done(StageClustering); err != nil {
		return nil, err
	}

	// labeling
	vectors := structure.NewVectorCache(a.cfg.Cluster.CacheSize)
	labeler := structure.NewLabelerWithParams(a.cfg.Label, vectors)
	flags, err := labeler.Label(ctx, structure.LabelInput{
		Frames:      frames,
		Sections:    sections,
		Clusters:    clusters,
		TempoBPM:    grid.TempoBPM,
		BeatsPerBar: beatsPerBar,
		GlobalKey:   key,
	})
	if err != nil {
		return nil, err
	}
	res.Diagnostics.CacheHits, res.Diagnostics.CacheMisses = vectors.Stats()
	if err := done(StageLabeling); err != nil {
		return nil, err
	}

	// chords
	chords, err := tonal.NewChordAnalyzerWithParams(a.cfg.Chords).Analyze(ctx, tonal.ChordInput{
		Timestamps:  frames.Timestamps,
		Chroma:      frames.Chroma,
		Beats:       grid.BeatTimestamps,
		Downbeats:   grid.DownbeatTimestamps,
		TempoBPM:    grid.TempoBPM,
		BeatsPerBar: beatsPerBar,
		Key:         key,
		SectionKeys: sectionKeys(sections),
		Bass:        bassObservations(bundle.BassNotes),
	})
	if err != nil {
		return nil, err
	}
	if err := done(StageChords); err != nil {
		return nil, err
	}

	// correction
	if a.cfg.EnableCorrection {
		corrector := theory.NewCorrectorWithParams(a.cfg.Corrector)
		res.Corrections, err = corrector.Correct(ctx, theory.CorrectionInput{
			Events:      chords.Events,
			Sections:    sections,
			Key:         key,
			Genre:       genre,
			BeatsPerBar: beatsPerBar,
		})
		if err != nil {
			return nil, err
		}
		if a.cfg.EnableMerge {
			sections, res.Merges = corrector.MergeSections(theory.MergeInput{
				Sections:    sections,
				Events:      chords.Events,
				Key:         key,
				TempoBPM:    grid.TempoBPM,
				BeatsPerBar: beatsPerBar,
			})
			if len(res.Merges) > 0 {
				clusters = rebuildClusters(sections)
				structure.UpdateRepetition(sections, clusters, a.cfg.Label)
			}
		}
	}

	res.Sections = sections
	res.Clusters = clusters
	res.Chords = chordEntries(chords.Events)
	res.ReviewFlags = flags
	res.Boundaries = boundaries(seg, frames)
	if len(res.Merges) > 0 {
		res.Boundaries = sectionBoundaries(sections, res.Boundaries, frames)
	}
	if err := done(StageCorrection); err != nil {
		return nil, err
	}

	logger.Debug("Analysis complete", logging.Fields{
		"sections":    len(res.Sections),
		"clusters":    len(res.Clusters),
		"chords":      len(res.Chords),
		"corrections": len(res.Corrections),
		"merges":      len(res.Merges),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	return res, nil
}

// resolveKey prefers the bundle's key and falls back to a Krumhansl estimate
// over the whole track
func (a *Analyzer) resolveKey(bundle *features.Bundle, frames *features.Frames) (tonal.Key, string) {
	if key, ok := tonal.ParseKey(bundle.DetectedKey, bundle.DetectedMode); ok {
		if bundle.KeyConfidence > 0 {
			key.Confidence = bundle.KeyConfidence
		}
		return key, "bundle"
	}
	if bundle.DetectedKey != "" {
		a.logger.Warn("Unrecognized bundle key, estimating from chroma", logging.Fields{
			"detected_key":  bundle.DetectedKey,
			"detected_mode": bundle.DetectedMode,
		})
	}

	key := tonal.NewKeyEstimator().EstimateSequence(frames.Chroma)
	if key.Known() && key.Confidence >= a.cfg.MinKeyConfidence {
		return key, "estimated"
	}
	return tonal.UnknownKey, "none"
}

func (a *Analyzer) resolveGenre(bundle *features.Bundle) theory.GenreProfile {
	name := a.cfg.Genre
	if name == "" {
		name = bundle.Genre
	}
	return a.genres.Lookup(name)
}

// clusterSimilarity picks the similarity the clusterer compares sections with.
// Sections are on the full-resolution timeline, so without a full-resolution
// comparer the downsampled matrix is read through a scaled view.
func clusterSimilarity(sim structure.Similarity, factor int, fullResolution bool) structure.Similarity {
	if factor <= 1 || fullResolution {
		return sim
	}
	return scaledSimilarity{inner: sim, factor: factor}
}

// scaledSimilarity maps full-resolution frame indices onto a downsampled matrix
type scaledSimilarity struct {
	inner  structure.Similarity
	factor int
}

func (s scaledSimilarity) Size() int {
	return s.inner.Size() * s.factor
}

func (s scaledSimilarity) At(i, j int) float64 {
	n := s.inner.Size()
	return s.inner.At(min(i/s.factor, n-1), min(j/s.factor, n-1))
}

// upsampleSegmentation maps boundaries from a downsampled timeline back to
// full-resolution frames; the closing boundary stays on the last frame
func upsampleSegmentation(seg *structure.Segmentation, factor, n int) *structure.Segmentation {
	out := *seg
	out.Boundaries = make([]int, len(seg.Boundaries))
	for i, b := range seg.Boundaries {
		out.Boundaries[i] = min(b*factor, n-1)
	}
	if len(out.Boundaries) > 1 {
		out.Boundaries[len(out.Boundaries)-1] = n - 1
	}
	return &out
}

// upsampleSections maps section spans back to full-resolution frames; the
// last section ends at the real track end
func upsampleSections(sections []structure.Section, factor int, frames *features.Frames) {
	n := frames.Len()
	for i := range sections {
		sections[i].StartFrame = min(sections[i].StartFrame*factor, n)
		sections[i].EndFrame = min(sections[i].EndFrame*factor, n)
	}
	if len(sections) > 0 {
		last := &sections[len(sections)-1]
		last.EndFrame = n
		last.EndTime = frames.TimeAt(n)
	}
}

func boundaries(seg *structure.Segmentation, frames *features.Frames) []Boundary {
	out := make([]Boundary, len(seg.Boundaries))
	for i, b := range seg.Boundaries {
		out[i] = Boundary{
			Frame:    b,
			Time:     frames.TimeAt(b),
			Strength: seg.Strength[i],
			Hard:     seg.Hard[i],
		}
	}
	return out
}

// sectionBoundaries lists the boundaries that still separate sections: each
// section start plus the closing frame. Strength and hardness carry over from
// the boundary previously detected at the same frame.
func sectionBoundaries(sections []structure.Section, detected []Boundary, frames *features.Frames) []Boundary {
	if len(sections) == 0 {
		return nil
	}
	byFrame := make(map[int]Boundary, len(detected))
	for _, b := range detected {
		byFrame[b.Frame] = b
	}

	at := func(frame int) Boundary {
		b, ok := byFrame[frame]
		if !ok {
			b = Boundary{Frame: frame}
		}
		b.Time = frames.TimeAt(frame)
		return b
	}

	out := make([]Boundary, 0, len(sections)+1)
	for _, s := range sections {
		out = append(out, at(s.StartFrame))
	}
	last := max(frames.Len()-1, 0)
	if out[len(out)-1].Frame != last {
		out = append(out, at(last))
	}
	return out
}

// sectionKeys turns the labeler's per-section keys into chord key spans
func sectionKeys(sections []structure.Section) []tonal.KeySpan {
	var spans []tonal.KeySpan
	for _, s := range sections {
		key, ok := tonal.ParseKey(s.Key, "")
		if !ok {
			continue
		}
		spans = append(spans, tonal.KeySpan{Start: s.StartTime, End: s.EndTime, Key: key})
	}
	return spans
}

func bassObservations(notes []features.BassNote) []tonal.BassObservation {
	out := make([]tonal.BassObservation, len(notes))
	for i, n := range notes {
		out[i] = tonal.BassObservation{Timestamp: n.Timestamp, PitchClass: n.PitchClass}
	}
	return out
}

// rebuildClusters regroups sections by cluster id after a merge
func rebuildClusters(sections []structure.Section) []structure.Cluster {
	byID := make(map[int][]int)
	for i, s := range sections {
		byID[s.ClusterID] = append(byID[s.ClusterID], i)
	}
	clusters := make([]structure.Cluster, 0, len(byID))
	for id, members := range byID {
		clusters = append(clusters, structure.Cluster{ID: id, Sections: members})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}
