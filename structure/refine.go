package structure

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// refine adds boundaries the harmonic novelty misses. A secondary curve
// combines timbre change (mfcc window distance) with energy change; inside
// each current span its strongest local peak becomes a boundary when the joint
// score clears RefineJointScore and an energy or timbre jump backs it up.
func (nd *NoveltyDetector) refine(frames *features.Frames, peaks []int, framesPerBeat float64, minDist int) ([]int, int) {
	n := frames.Len()
	w := max(1, int(math.Round(nd.params.RefineWindowBeats*framesPerBeat)))
	if n < 2*w+1 {
		return peaks, 0
	}

	mfcc, hasMFCC := frames.MFCC.Get()
	joint := make([]float64, n)
	timbre := make([]float64, n)
	ratio := make([]float64, n)
	for i := range ratio {
		ratio[i] = 1
	}

	for i := w; i <= n-w; i++ {
		if hasMFCC {
			before := nd.vectors.Average("mfcc", mfcc, i-w, i)
			after := nd.vectors.Average("mfcc", mfcc, i, i+w)
			timbre[i] = common.Clamp01(1 - common.CosineSimilarity(before, after))
		}
		ratio[i] = energyRatio(
			nd.vectors.Mean("rms", frames.RMS, i-w, i),
			nd.vectors.Mean("rms", frames.RMS, i, i+w),
		)
		joint[i] = nd.jointScore(timbre[i], ratio[i])
	}

	bounds := append([]int{0}, peaks...)
	bounds = append(bounds, n-1)

	added := []int{}
	for k := 0; k+1 < len(bounds); k++ {
		lo, hi := bounds[k]+minDist, bounds[k+1]-minDist
		best := -1
		for i := max(lo, 1); i <= hi && i < n-1; i++ {
			if joint[i] > joint[i-1] && joint[i] >= joint[i+1] && (best < 0 || joint[i] > joint[best]) {
				best = i
			}
		}
		if best < 0 || joint[best] < nd.params.RefineJointScore {
			continue
		}
		if ratio[best] >= nd.params.RefineEnergyRatio || timbre[best] >= nd.params.RefineTimbreJump {
			added = append(added, best)
		}
	}

	if len(added) == 0 {
		return peaks, 0
	}

	nd.logger.Debug("Refinement added boundaries", logging.Fields{
		"function": "refine",
		"added":    added,
	})

	out := append(append([]int{}, peaks...), added...)
	sort.Ints(out)
	return out, len(added)
}

func (nd *NoveltyDetector) jointScore(timbre, ratio float64) float64 {
	timbrePart := 0.0
	if nd.params.RefineTimbreJump > 0 {
		timbrePart = math.Min(1, timbre/nd.params.RefineTimbreJump)
	}
	energyPart := 0.0
	if nd.params.RefineEnergyRatio > 1 && ratio > 1 {
		energyPart = math.Min(1, math.Log(ratio)/math.Log(nd.params.RefineEnergyRatio))
	}
	return 0.5*timbrePart + 0.5*energyPart
}
