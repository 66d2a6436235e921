package structure

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// Timing is the beat information the detector adapts to
type Timing struct {
	TempoBPM float64
	Beats    []float64
}

func (t Timing) tempo() float64 {
	if t.TempoBPM > 0 && common.IsFinite(t.TempoBPM) {
		return t.TempoBPM
	}
	return features.DefaultTempoBPM
}

// NoveltyDetector finds section boundaries with multi-scale checkerboard
// kernels run along the similarity matrix diagonal.
//
// References:
//   - Foote, J. (2000). "Automatic Audio Segmentation Using a Measure of Audio
//     Novelty". Proc. IEEE ICME.
//   - Kaiser, F., Peeters, G. (2013). "Multiple Hypotheses at Multiple Scales
//     for Audio Novelty Computation within Music". Proc. ICASSP.
type NoveltyDetector struct {
	params  NoveltyParams
	kernels *KernelCache
	vectors *VectorCache
	logger  logging.Logger
}

// NewNoveltyDetector creates a detector with default parameters and private caches
func NewNoveltyDetector() *NoveltyDetector {
	return NewNoveltyDetectorWithParams(DefaultNoveltyParams(), nil, nil)
}

// NewNoveltyDetectorWithParams creates a detector. Nil caches are replaced by
// fresh ones owned by the detector.
func NewNoveltyDetectorWithParams(params NoveltyParams, kernels *KernelCache, vectors *VectorCache) *NoveltyDetector {
	if kernels == nil {
		kernels = NewKernelCache(params.TaperRatio)
	}
	if vectors == nil {
		vectors = NewVectorCache(0)
	}
	return &NoveltyDetector{
		params:  params,
		kernels: kernels,
		vectors: vectors,
		logger: logging.WithFields(logging.Fields{
			"component": "novelty_detector",
		}),
	}
}

type noveltyScale struct {
	name   string
	beats  float64
	weight float64
}

// Detect computes the novelty curve and picks boundaries. Zero or one frame
// yields the single boundary [0]; a flat curve yields first and last frame only.
func (nd *NoveltyDetector) Detect(ctx context.Context, m *Matrix, frames *features.Frames, timing Timing) (*Segmentation, error) {
	logger := nd.logger.WithFields(logging.Fields{
		"function": "Detect",
	})

	n := m.Size()
	if n <= 1 {
		return &Segmentation{
			Boundaries: []int{0},
			Strength:   []float64{0},
			Hard:       []bool{false},
			Novelty:    make([]float64, n),
		}, nil
	}

	hop := frames.Hop
	if hop <= 0 {
		hop = 0.1
	}
	tempo := timing.tempo()
	framesPerBeat := 60.0 / tempo / hop

	curve, err := nd.multiScaleNovelty(ctx, m, framesPerBeat)
	if err != nil {
		return nil, err
	}

	minDist := nd.minDistanceFrames(tempo, hop)
	window := max(1, int(math.Round(nd.params.PeakWindowSeconds/hop)))
	sensitivity := nd.Sensitivity(tempo)

	peaks, usedSensitivity, retried := nd.pickWithRetry(curve, sensitivity, window, minDist)

	seg := &Segmentation{
		Novelty:     curve,
		Sensitivity: usedSensitivity,
		Retried:     retried,
	}

	if nd.params.EnableRefinement {
		var added int
		peaks, added = nd.refine(frames, peaks, framesPerBeat, minDist)
		seg.Refined = added
	}

	if nd.params.SnapToBeats && len(timing.Beats) > 0 {
		peaks = snapToBeats(peaks, frames, timing.Beats)
	}

	seg.Boundaries, seg.Strength = enforceBoundaries(peaks, curve, n, minDist)
	seg.Hard = nd.hardFlags(seg, frames.RMS, common.Max(curve), hop)

	logger.Debug("Boundaries detected", logging.Fields{
		"frames":      n,
		"boundaries":  len(seg.Boundaries),
		"sensitivity": usedSensitivity,
		"retried":     retried,
		"refined":     seg.Refined,
	})

	return seg, nil
}

// Sensitivity returns the MAD multiplier for a tempo class
func (nd *NoveltyDetector) Sensitivity(tempo float64) float64 {
	switch {
	case tempo < nd.params.SlowTempo:
		return nd.params.SlowSensitivity
	case tempo >= nd.params.FastTempo:
		return nd.params.FastSensitivity
	default:
		return nd.params.MediumSensitivity
	}
}

func (nd *NoveltyDetector) minDistanceFrames(tempo, hop float64) int {
	seconds := nd.params.MinDistanceBeats * 60.0 / tempo
	seconds = common.Clamp(seconds, nd.params.MinDistanceSeconds, nd.params.MaxDistanceSeconds)
	return max(1, int(math.Round(seconds/hop)))
}

// multiScaleNovelty convolves each kernel scale, max-normalizes, combines with
// the (renormalized) scale weights and smooths the result.
func (nd *NoveltyDetector) multiScaleNovelty(ctx context.Context, m *Matrix, framesPerBeat float64) ([]float64, error) {
	n := m.Size()
	scales := []noveltyScale{
		{name: "phrase", beats: nd.params.PhraseBeats, weight: nd.params.PhraseWeight},
		{name: "section", beats: nd.params.SectionBeats, weight: nd.params.SectionWeight},
		{name: "movement", beats: nd.params.MovementBeats, weight: nd.params.MovementWeight},
	}

	combined := make([]float64, n)
	totalWeight := 0.0

	for _, scale := range scales {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("novelty: %w", err)
		}
		if scale.weight <= 0 || scale.beats <= 0 {
			continue
		}

		size := int(math.Round(scale.beats * framesPerBeat))
		if nd.params.MaxKernelFrames > 0 {
			size = min(size, nd.params.MaxKernelFrames)
		}
		size = max(4, size-size%2)
		if size >= n {
			continue
		}

		curve := convolveDiagonal(m, nd.kernels.Get(size).RawSymmetric().Data, size)
		peak := common.Max(curve)
		if peak <= 0 {
			continue
		}
		for i, v := range curve {
			combined[i] += scale.weight * v / peak
		}
		totalWeight += scale.weight
	}

	if totalWeight > 0 {
		for i := range combined {
			combined[i] /= totalWeight
		}
	}

	smoothed := common.MedianFilter(combined, nd.params.MedianWindow)
	return common.MovingAverage(smoothed, nd.params.AverageWindow), nil
}

// convolveDiagonal slides a size x size kernel along the diagonal. Frame t is
// the first frame of the lower-right quadrant. Positions where the kernel does
// not fit repeat the nearest fitted value so a flat matrix gives a flat curve;
// negative responses are clipped.
func convolveDiagonal(m *Matrix, kernel []float64, size int) []float64 {
	n := m.Size()
	h := size / 2
	out := make([]float64, n)
	data := m.Data()

	for t := h; t <= n-h; t++ {
		sum := 0.0
		origin := t - h
		for a := 0; a < size; a++ {
			row := data[(origin+a)*n+origin : (origin+a)*n+origin+size]
			krow := kernel[a*size : a*size+size]
			for b, k := range krow {
				sum += k * row[b]
			}
		}
		if sum > 0 {
			out[t] = sum
		}
	}

	for t := 0; t < h; t++ {
		out[t] = out[h]
	}
	for t := n - h + 1; t < n; t++ {
		out[t] = out[n-h]
	}
	return out
}
