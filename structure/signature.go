package structure

import (
	"math"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/features"
)

// vocal proxy loudness gate, relative to the loudest frame
const vocalProxyGate = 0.1

// signatureBuilder summarizes sections for the labeler. Track-level maxima
// are computed once so every section is measured on the same scale.
type signatureBuilder struct {
	frames      *features.Frames
	vectors     *VectorCache
	chroma      *chroma.ChromaVectorAnalyzer
	params      LabelParams
	tempo       float64
	beatsPerBar int

	maxRMS   float64
	maxFlux  float64
	vocal    []float64
	estimate bool
	total    float64
}

func newSignatureBuilder(frames *features.Frames, vectors *VectorCache, params LabelParams, tempo float64, beatsPerBar int) *signatureBuilder {
	sb := &signatureBuilder{
		frames:      frames,
		vectors:     vectors,
		chroma:      chroma.NewChromaVectorAnalyzer(),
		params:      params,
		tempo:       tempo,
		beatsPerBar: max(1, beatsPerBar),
		maxRMS:      common.Max(frames.RMS),
		maxFlux:     common.Max(frames.Flux),
	}
	if sb.tempo <= 0 {
		sb.tempo = features.DefaultTempoBPM
	}
	sb.total = frames.TimeAt(frames.Len()) - frames.TimeAt(0)

	if v, ok := frames.Vocal.Get(); ok {
		sb.vocal = v
	} else {
		sb.vocal = sb.vocalProxy()
		sb.estimate = true
	}
	return sb
}

// vocalProxy estimates per-frame vocal presence from spectral change and
// harmonic focus: voiced melody keeps the flux up while concentrating chroma
// energy. Quiet frames are gated to 0.
func (sb *signatureBuilder) vocalProxy() []float64 {
	n := sb.frames.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if sb.maxRMS <= 0 || sb.frames.RMS[i] < vocalProxyGate*sb.maxRMS {
			continue
		}
		flux := 0.0
		if sb.maxFlux > 0 {
			flux = sb.frames.Flux[i] / sb.maxFlux
		}
		focus := 1 - sb.chroma.Entropy(sb.frames.Chroma[i])
		out[i] = common.Clamp01(0.5*flux + 0.5*focus)
	}
	return out
}

// build fills Signature on every section
func (sb *signatureBuilder) build(sections []Section, clusters []Cluster) {
	for i := range sections {
		sections[i].Signature = sb.section(sections[i], clusters)
	}

	loudest := 0.0
	for _, s := range sections {
		loudest = math.Max(loudest, s.Signature.AvgRMS)
	}
	for i := range sections {
		if loudest > 0 {
			sections[i].Signature.RelativeEnergy = sections[i].Signature.AvgRMS / loudest
		}
	}
}

func (sb *signatureBuilder) section(s Section, clusters []Cluster) Signature {
	start, end := s.StartFrame, min(s.EndFrame, sb.frames.Len())
	sig := Signature{
		DurationSeconds: s.Duration(),
		VocalEstimated:  sb.estimate,
	}
	if end <= start {
		return sig
	}

	rms := sb.frames.RMS[start:end]
	flux := sb.frames.Flux[start:end]
	sig.AvgRMS = sb.vectors.Mean("rms", sb.frames.RMS, start, end)
	sig.MaxRMS = common.Max(rms)
	sig.SpectralFluxMean = sb.vectors.Mean("flux", sb.frames.Flux, start, end)
	sig.SpectralFluxTrend = sb.trend(flux, sb.maxFlux)
	sig.EnergySlope = sb.trend(rms, sb.maxRMS)

	entropy := 0.0
	for i := start; i < end; i++ {
		entropy += sb.chroma.Entropy(sb.frames.Chroma[i])
	}
	sig.ChromaEntropyMean = entropy / float64(end-start)

	voiced := 0
	for _, p := range sb.vocal[start:end] {
		if p >= sb.params.VocalThreshold {
			voiced++
		}
	}
	sig.VocalRatio = float64(voiced) / float64(end-start)
	sig.HasVocals = sig.VocalRatio >= sb.params.HasVocalsRatio

	count := 1
	if s.ClusterID >= 0 && s.ClusterID < len(clusters) {
		count = len(clusters[s.ClusterID].Sections)
	}
	sig.RepetitionCount = count
	sig.IsUnique = count == 1
	sig.RepetitionScore = sb.repetitionScore(count)

	sig.DurationBars = sig.DurationSeconds * sb.tempo / 60.0 / float64(sb.beatsPerBar)
	if sb.total > 0 {
		sig.PositionRatio = common.Clamp01((s.StartTime + s.EndTime) / 2 / sb.total)
	}
	return sig
}

// trend is the regression slope over the section, scaled to the change across
// the whole section and relative to the track maximum
func (sb *signatureBuilder) trend(values []float64, scale float64) float64 {
	if len(values) < 2 || scale <= 0 {
		return 0
	}
	return common.Slope(values) * float64(len(values)-1) / scale
}

func (sb *signatureBuilder) repetitionScore(count int) float64 {
	return repetitionScore(count, sb.params.ChorusPreferredRepeats)
}

func repetitionScore(count, preferred int) float64 {
	preferred = max(2, preferred)
	return common.Clamp01(float64(count-1) / float64(preferred-1))
}

// UpdateRepetition recomputes the repetition fields of every section from
// its cluster's current membership
func UpdateRepetition(sections []Section, clusters []Cluster, params LabelParams) {
	for _, c := range clusters {
		for _, m := range c.Sections {
			if m < 0 || m >= len(sections) {
				continue
			}
			sig := &sections[m].Signature
			sig.RepetitionCount = len(c.Sections)
			sig.IsUnique = len(c.Sections) == 1
			sig.RepetitionScore = repetitionScore(len(c.Sections), params.ChorusPreferredRepeats)
		}
	}
}
