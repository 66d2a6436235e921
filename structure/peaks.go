package structure

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/algorithms/stats"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// pickWithRetry runs peak picking once and retries at most once in each
// direction when the count falls outside [MinPeaks, MaxPeaks].
func (nd *NoveltyDetector) pickWithRetry(curve []float64, sensitivity float64, window, minDist int) ([]int, float64, bool) {
	peaks := pickPeaks(curve, sensitivity, window, minDist, nd.params.MinRelativeHeight)
	used := sensitivity
	retried := false
	triedLow, triedHigh := false, false

	for {
		switch {
		case len(peaks) < nd.params.MinPeaks && !triedLow && nd.params.LowRetryFactor > 0:
			triedLow = true
			used *= nd.params.LowRetryFactor
		case nd.params.MaxPeaks > 0 && len(peaks) > nd.params.MaxPeaks && !triedHigh && nd.params.HighRetryFactor > 0:
			triedHigh = true
			used *= nd.params.HighRetryFactor
		default:
			return peaks, used, retried
		}

		retried = true
		nd.logger.Debug("Retrying peak picking", logging.Fields{
			"function":    "pickWithRetry",
			"peaks":       len(peaks),
			"sensitivity": used,
		})
		peaks = pickPeaks(curve, used, window, minDist, nd.params.MinRelativeHeight)
	}
}

// pickPeaks returns interior local maxima that clear a local median + MAD
// threshold and the relative height floor, at least minDist frames from each
// other and from both ends. Higher peaks win distance conflicts.
func pickPeaks(curve []float64, sensitivity float64, window, minDist int, minRelHeight float64) []int {
	n := len(curve)
	if n < 3 {
		return nil
	}

	peakMax := common.Max(curve)
	if peakMax <= 0 {
		return nil
	}

	percentiles := stats.NewPercentiles()
	var candidates []int
	for i := 1; i < n-1; i++ {
		v := curve[i]
		if !(v > curve[i-1] && v >= curve[i+1]) {
			continue
		}
		if v < minRelHeight*peakMax || i < minDist || n-1-i < minDist {
			continue
		}
		local := percentiles.Local(curve, i, window)
		if v > local.Median+sensitivity*local.MAD {
			candidates = append(candidates, i)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return curve[candidates[a]] > curve[candidates[b]]
	})

	var accepted []int
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			if absInt(c-a) < minDist {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}

	sort.Ints(accepted)
	return accepted
}

// snapToBeats moves each boundary to the frame of the nearest beat
func snapToBeats(peaks []int, frames *features.Frames, beats []float64) []int {
	sorted := make([]float64, len(beats))
	copy(sorted, beats)
	sort.Float64s(sorted)

	out := make([]int, 0, len(peaks))
	for _, p := range peaks {
		t := frames.TimeAt(p)
		k := sort.SearchFloat64s(sorted, t)
		var best float64
		switch {
		case k <= 0:
			best = sorted[0]
		case k >= len(sorted):
			best = sorted[len(sorted)-1]
		case t-sorted[k-1] <= sorted[k]-t:
			best = sorted[k-1]
		default:
			best = sorted[k]
		}
		out = append(out, frames.FrameAt(best))
	}
	sort.Ints(out)
	return out
}

// enforceBoundaries produces the final boundary list: first 0, last n-1,
// strictly increasing, neighbours at least minDist apart. When two candidates
// conflict the stronger one is kept.
func enforceBoundaries(peaks []int, curve []float64, n, minDist int) ([]int, []float64) {
	if n <= 1 {
		return []int{0}, []float64{0}
	}

	strength := func(f int) float64 {
		if f >= 0 && f < len(curve) {
			return curve[f]
		}
		return 0
	}

	sorted := make([]int, len(peaks))
	copy(sorted, peaks)
	sort.Ints(sorted)

	last := n - 1
	interior := []int{}
	for _, p := range sorted {
		if p < minDist || last-p < minDist || p <= 0 || p >= last {
			continue
		}
		if len(interior) > 0 {
			prev := interior[len(interior)-1]
			if p == prev {
				continue
			}
			if p-prev < minDist {
				if strength(p) > strength(prev) {
					interior[len(interior)-1] = p
				}
				continue
			}
		}
		interior = append(interior, p)
	}

	boundaries := make([]int, 0, len(interior)+2)
	boundaries = append(boundaries, 0)
	boundaries = append(boundaries, interior...)
	boundaries = append(boundaries, last)

	strengths := make([]float64, len(boundaries))
	for i := 1; i < len(boundaries)-1; i++ {
		strengths[i] = strength(boundaries[i])
	}
	return boundaries, strengths
}

// hardFlags marks interior boundaries whose novelty is near the track maximum
// and that coincide with an energy jump.
func (nd *NoveltyDetector) hardFlags(seg *Segmentation, rms []float64, curveMax, hop float64) []bool {
	hard := make([]bool, len(seg.Boundaries))
	if curveMax <= 0 || len(rms) == 0 {
		return hard
	}
	window := max(1, int(math.Round(nd.params.HardEnergyWindowSeconds/hop)))

	for i := 1; i < len(seg.Boundaries)-1; i++ {
		b := seg.Boundaries[i]
		if seg.Strength[i] < nd.params.HardNoveltyRatio*curveMax {
			continue
		}
		before := nd.vectors.Mean("rms", rms, b-window, b)
		after := nd.vectors.Mean("rms", rms, b, b+window)
		if energyRatio(before, after) >= nd.params.HardEnergyRatio {
			hard[i] = true
		}
	}
	return hard
}

// energyRatio returns max(a,b)/min(a,b); two silent windows give 1
func energyRatio(a, b float64) float64 {
	const eps = 1e-9
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi < eps {
		return 1
	}
	return hi / math.Max(lo, eps)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
