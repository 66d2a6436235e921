package features

import (
	"sort"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

// Frames holds a track's frame-level features as parallel arrays indexed by
// frame number on the chroma timeline.
type Frames struct {
	Hop        float64
	Timestamps []float64
	Chroma     [][]float64
	MFCC       Optional[[][]float64]
	RMS        []float64
	Flux       []float64
	Vocal      Optional[[]float64]

	// Derived records which tracks were synthesized from chroma because the
	// bundle did not supply them ("rms", "flux").
	Derived []string

	// Replaced counts NaN / Inf samples zeroed during ingestion
	Replaced int
}

// Len returns the frame count
func (f *Frames) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Chroma)
}

// HasMFCC reports whether a timbre track is present
func (f *Frames) HasMFCC() bool {
	return f.MFCC.Present()
}

// HasVocal reports whether a vocal-presence track is present
func (f *Frames) HasVocal() bool {
	return f.Vocal.Present()
}

// TimeAt returns the timestamp of frame i, extrapolating with the hop past the
// last frame.
func (f *Frames) TimeAt(i int) float64 {
	n := f.Len()
	if n == 0 {
		return float64(i) * f.Hop
	}
	if i < 0 {
		return f.Timestamps[0] + float64(i)*f.Hop
	}
	if i >= n {
		return f.Timestamps[n-1] + float64(i-n+1)*f.Hop
	}
	return f.Timestamps[i]
}

// FrameAt returns the frame whose timestamp is nearest to t
func (f *Frames) FrameAt(t float64) int {
	n := f.Len()
	if n == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(f.Timestamps, t)
	if idx <= 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	if t-f.Timestamps[idx-1] <= f.Timestamps[idx]-t {
		return idx - 1
	}
	return idx
}

// Frames aligns every track of the bundle onto the chroma timeline. Tracks
// with a different sampling are matched by nearest timestamp; missing rms and
// flux are derived from chroma; NaN and Inf samples become 0.
func (b *Bundle) Frames() *Frames {
	n := len(b.ChromaFrames)
	f := &Frames{
		Hop:        b.Hop(),
		Timestamps: make([]float64, n),
		Chroma:     make([][]float64, n),
	}

	for i, cf := range b.ChromaFrames {
		f.Timestamps[i] = cf.Timestamp
		vec := make([]float64, 12)
		copy(vec, cf.Chroma)
		f.Replaced += common.Sanitize(vec)
		for j := range vec {
			if vec[j] < 0 {
				vec[j] = 0
			}
		}
		f.Chroma[i] = vec
	}
	if !finiteAll(f.Timestamps) {
		for i := range f.Timestamps {
			f.Timestamps[i] = float64(i) * f.Hop
		}
	}

	if n == 0 {
		f.RMS = []float64{}
		f.Flux = []float64{}
		return f
	}

	if len(b.MFCCFrames) > 0 {
		times := make([]float64, len(b.MFCCFrames))
		for i, m := range b.MFCCFrames {
			times[i] = m.Timestamp
		}
		idx := alignNearest(times, f.Timestamps)
		width := len(b.MFCCFrames[0].MFCC)
		mfcc := make([][]float64, n)
		for i, j := range idx {
			vec := make([]float64, width)
			copy(vec, b.MFCCFrames[j].MFCC)
			f.Replaced += common.Sanitize(vec)
			mfcc[i] = vec
		}
		f.MFCC = Some(mfcc)
	}

	if len(b.RMSFrames) > 0 {
		f.RMS = alignScalars(b.RMSFrames, f.Timestamps)
		f.Replaced += common.Sanitize(f.RMS)
	} else {
		f.RMS = make([]float64, n)
		for i, c := range f.Chroma {
			f.RMS[i] = floats.Norm(c, 2)
		}
		f.Derived = append(f.Derived, "rms")
	}

	if len(b.FluxFrames) > 0 {
		f.Flux = alignScalars(b.FluxFrames, f.Timestamps)
		f.Replaced += common.Sanitize(f.Flux)
	} else {
		f.Flux = make([]float64, n)
		prev := common.L2Normalize(f.Chroma[0])
		for i := 1; i < n; i++ {
			cur := common.L2Normalize(f.Chroma[i])
			f.Flux[i] = floats.Distance(cur, prev, 2)
			prev = cur
		}
		f.Derived = append(f.Derived, "flux")
	}

	if len(b.VocalFrames) > 0 {
		times := make([]float64, len(b.VocalFrames))
		for i, v := range b.VocalFrames {
			times[i] = v.Timestamp
		}
		vocal := make([]float64, n)
		for i, j := range alignNearest(times, f.Timestamps) {
			vocal[i] = b.VocalFrames[j].Probability
		}
		f.Replaced += common.Sanitize(vocal)
		for i := range vocal {
			vocal[i] = common.Clamp01(vocal[i])
		}
		f.Vocal = Some(vocal)
	}

	return f
}

// alignNearest maps every target time to the index of the nearest source
// time. Source times are sorted first when the backend emitted them unordered.
func alignNearest(source, target []float64) []int {
	order := make([]int, len(source))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return source[order[a]] < source[order[b]] })

	sorted := make([]float64, len(source))
	for i, o := range order {
		sorted[i] = source[o]
	}

	out := make([]int, len(target))
	for i, t := range target {
		k := sort.SearchFloat64s(sorted, t)
		switch {
		case k <= 0:
			out[i] = order[0]
		case k >= len(sorted):
			out[i] = order[len(sorted)-1]
		case t-sorted[k-1] <= sorted[k]-t:
			out[i] = order[k-1]
		default:
			out[i] = order[k]
		}
	}
	return out
}

func alignScalars(track []ScalarFrame, target []float64) []float64 {
	times := make([]float64, len(track))
	for i, s := range track {
		times[i] = s.Timestamp
	}
	out := make([]float64, len(target))
	for i, j := range alignNearest(times, target) {
		out[i] = track[j].Value
	}
	return out
}

func finiteAll(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}
