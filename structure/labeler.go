package structure

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// LabelInput is everything the labeler reasons over
type LabelInput struct {
	Frames      *features.Frames
	Sections    []Section
	Clusters    []Cluster
	TempoBPM    float64
	BeatsPerBar int
	// GlobalKey is used for sections whose own key estimate is weak
	GlobalKey tonal.Key
}

// Labeler assigns semantic labels with a fixed rule priority: chorus, verse,
// intro, outro, pre-chorus, bridge/middle8, solo/instrumental/breakdown and a
// fallback. Later rules only fill sections still unlabeled. A validation pass
// then repairs implausible results and numbers variants.
type Labeler struct {
	params  LabelParams
	vectors *VectorCache
	keys    *tonal.KeyEstimator
	logger  logging.Logger
}

// NewLabeler creates a labeler with default thresholds and a private cache
func NewLabeler() *Labeler {
	return NewLabelerWithParams(DefaultLabelParams(), nil)
}

// NewLabelerWithParams creates a labeler. A nil cache is replaced by a fresh one.
func NewLabelerWithParams(params LabelParams, vectors *VectorCache) *Labeler {
	if vectors == nil {
		vectors = NewVectorCache(0)
	}
	return &Labeler{
		params:  params,
		vectors: vectors,
		keys:    tonal.NewKeyEstimator(),
		logger: logging.WithFields(logging.Fields{
			"component": "section_labeler",
		}),
	}
}

// labelRun carries per-call state so a Labeler can be reused
type labelRun struct {
	*Labeler
	in       LabelInput
	sections []Section
	total    float64
}

// Label fills Label, Confidence, Reason, Variant, Key and Signature on
// in.Sections in place and returns sections flagged for review.
func (l *Labeler) Label(ctx context.Context, in LabelInput) ([]ReviewFlag, error) {
	logger := l.logger.WithFields(logging.Fields{
		"function": "Label",
	})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("labeling: %w", err)
	}
	if len(in.Sections) == 0 || in.Frames.Len() == 0 {
		return nil, nil
	}

	run := &labelRun{
		Labeler:  l,
		in:       in,
		sections: in.Sections,
	}
	run.total = in.Frames.TimeAt(in.Frames.Len()) - in.Frames.TimeAt(0)

	builder := newSignatureBuilder(in.Frames, l.vectors, l.params, in.TempoBPM, in.BeatsPerBar)
	builder.build(run.sections, in.Clusters)
	if builder.estimate {
		logger.Debug("No vocal track, using vocal proxy")
	}

	for i := range run.sections {
		run.sections[i].Label = ""
		run.sections[i].Confidence = 0
		run.sections[i].Reason = ""
		run.sections[i].Variant = 0
	}

	run.applyRules()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("labeling: %w", err)
	}

	flags := run.validate()
	NumberVariants(run.sections)
	run.assignKeys()

	logger.Debug("Sections labeled", logging.Fields{
		"sections":     len(run.sections),
		"review_flags": len(flags),
	})
	return flags, nil
}

// applyRules runs the labeling rules in priority order
func (r *labelRun) applyRules() {
	r.labelChorus()
	r.labelVerse()
	r.labelIntro()
	r.labelOutro()
	r.labelPreChorus()
	r.labelBridge()
	r.labelInstrumental()
	r.labelFallback()
}

func (r *labelRun) set(i int, label Label, confidence float64, reason string) {
	r.sections[i].Label = label
	r.sections[i].Confidence = common.Clamp01(confidence)
	r.sections[i].Reason = reason
}

func (r *labelRun) unlabeled(i int) bool {
	return i >= 0 && i < len(r.sections) && r.sections[i].Label == ""
}

func (r *labelRun) members(s Section) []int {
	if s.ClusterID >= 0 && s.ClusterID < len(r.in.Clusters) {
		return r.in.Clusters[s.ClusterID].Sections
	}
	return []int{s.Index}
}

// chorusScore is the weighted sum of repetition, energy, vocal presence and
// duration over a cluster's members
func (r *labelRun) chorusScore(members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	energy, vocal, bars := 0.0, 0.0, 0.0
	for _, m := range members {
		sig := r.sections[m].Signature
		energy += sig.RelativeEnergy
		vocal += sig.VocalRatio
		bars += sig.DurationBars
	}
	n := float64(len(members))
	energy, vocal, bars = energy/n, vocal/n, bars/n

	durationScore := 0.0
	if r.params.ChorusTypicalBars > 0 {
		durationScore = math.Min(1, bars/r.params.ChorusTypicalBars)
	}
	rep := r.sections[members[0]].Signature.RepetitionScore

	return r.params.ChorusRepetitionWeight*rep +
		r.params.ChorusEnergyWeight*common.Clamp01(energy) +
		r.params.ChorusVocalWeight*common.Clamp01(vocal) +
		r.params.ChorusDurationWeight*durationScore
}

// bestRepeatedCluster returns the repeated cluster with the highest chorus
// score, or -1
func (r *labelRun) bestRepeatedCluster() (int, float64) {
	best, bestScore := -1, 0.0
	for _, c := range r.in.Clusters {
		if len(c.Sections) < 2 {
			continue
		}
		score := r.chorusScore(c.Sections)
		if best < 0 || score > bestScore {
			best, bestScore = c.ID, score
		}
	}
	return best, bestScore
}

func (r *labelRun) labelChorus() {
	id, score := r.bestRepeatedCluster()
	if id < 0 || score < r.params.ChorusMinScore {
		return
	}
	members := r.in.Clusters[id].Sections
	sig := r.sections[members[0]].Signature
	reason := fmt.Sprintf("repeats %dx, energy %.2f, vocals %.2f", len(members), sig.RelativeEnergy, sig.VocalRatio)
	for _, m := range members {
		r.set(m, LabelChorus, score, reason)
	}
}

// looksPreChorus reports a short span whose spectral flux is rising
func (r *labelRun) looksPreChorus(i int) bool {
	sig := r.sections[i].Signature
	short := sig.DurationSeconds < r.params.PreChorusMaxSecs || sig.DurationBars < r.params.PreChorusMaxBars
	return short && sig.SpectralFluxTrend > r.params.PreChorusFluxRise
}

func (r *labelRun) verseCandidate(i int) bool {
	if !r.unlabeled(i) {
		return false
	}
	sig := r.sections[i].Signature
	return sig.HasVocals && sig.RelativeEnergy <= r.params.VerseMaxEnergy
}

func (r *labelRun) labelVerse() {
	for i := 1; i < len(r.sections); i++ {
		if r.sections[i].Label != LabelChorus {
			continue
		}
		p := i - 1
		// a pre-chorus may sit between the verse and the chorus
		if r.looksPreChorus(p) && p > 0 && (r.verseCandidate(p-1) || r.sections[p-1].Label == LabelVerse) {
			p--
		}
		if !r.verseCandidate(p) {
			continue
		}
		// unique sections after the second chorus are left to the bridge rule
		if r.sections[p].Signature.IsUnique && r.chorusesBefore(p) >= 2 {
			continue
		}

		sig := r.sections[p].Signature
		conf := 0.45 + 0.3*sig.VocalRatio + 0.15*sig.RepetitionScore
		r.set(p, LabelVerse, conf, fmt.Sprintf("precedes chorus, vocals %.2f, energy %.2f", sig.VocalRatio, sig.RelativeEnergy))

		for _, m := range r.members(r.sections[p]) {
			if r.unlabeled(m) {
				r.set(m, LabelVerse, conf*0.9, fmt.Sprintf("repeats verse at section %d", p))
			}
		}
	}
}

func (r *labelRun) chorusesBefore(i int) int {
	count := 0
	for k := 0; k < i && k < len(r.sections); k++ {
		if r.sections[k].Label == LabelChorus {
			count++
		}
	}
	return count
}

func (r *labelRun) labelIntro() {
	if len(r.sections) < 2 || !r.unlabeled(0) {
		return
	}
	sig := r.sections[0].Signature
	conf := 0.5
	var why []string
	if sig.DurationSeconds <= r.params.IntroMaxSeconds {
		conf += 0.15
		why = append(why, "short")
	}
	if sig.RelativeEnergy < r.params.LowEnergy {
		conf += 0.15
		why = append(why, "quiet")
	}
	if sig.VocalRatio < r.params.HasVocalsRatio {
		conf += 0.15
		why = append(why, "no vocals")
	}
	if len(why) > 0 {
		r.set(0, LabelIntro, conf, "opening section: "+strings.Join(why, ", "))
	}
}

func (r *labelRun) labelOutro() {
	last := len(r.sections) - 1
	if last < 1 || !r.unlabeled(last) {
		return
	}
	sig := r.sections[last].Signature
	conf := 0.5
	var why []string
	if sig.EnergySlope < -r.params.FadeSlope {
		conf += 0.15
		why = append(why, "fading")
	}
	if sig.RelativeEnergy < r.params.LowEnergy {
		conf += 0.15
		why = append(why, "quiet")
	}
	if sig.DurationSeconds >= r.params.OutroLongSeconds {
		conf += 0.15
		why = append(why, "long")
	}
	if len(why) > 0 {
		r.set(last, LabelOutro, conf, "closing section: "+strings.Join(why, ", "))
	}
}

func (r *labelRun) labelPreChorus() {
	for i := 1; i+1 < len(r.sections); i++ {
		if !r.unlabeled(i) || r.sections[i-1].Label != LabelVerse || r.sections[i+1].Label != LabelChorus {
			continue
		}
		if !r.looksPreChorus(i) {
			continue
		}
		sig := r.sections[i].Signature
		r.set(i, LabelPreChorus, 0.6+0.2*math.Min(1, sig.SpectralFluxTrend), fmt.Sprintf("between verse and chorus, flux rising %.2f", sig.SpectralFluxTrend))
	}
}

// verseProfile is the mean chroma over every verse section, nil without verses
func (r *labelRun) verseProfile() []float64 {
	var profile []float64
	count := 0
	for _, s := range r.sections {
		if s.Label != LabelVerse {
			continue
		}
		avg := r.vectors.Average("chroma", r.in.Frames.Chroma, s.StartFrame, s.EndFrame)
		if len(avg) == 0 {
			continue
		}
		if profile == nil {
			profile = make([]float64, len(avg))
		}
		for k, v := range avg {
			profile[k] += v
		}
		count++
	}
	for k := range profile {
		profile[k] /= float64(count)
	}
	return profile
}

func (r *labelRun) labelBridge() {
	seen := 0
	afterSecond := -1
	for i, s := range r.sections {
		if s.Label == LabelChorus {
			seen++
			if seen == 2 {
				afterSecond = i
				break
			}
		}
	}
	if afterSecond < 0 {
		return
	}

	verse := r.verseProfile()
	for i := afterSecond + 1; i < len(r.sections); i++ {
		s := r.sections[i]
		sig := s.Signature
		if !r.unlabeled(i) || !sig.IsUnique {
			continue
		}
		if sig.PositionRatio < r.params.BridgeMinPosition || sig.PositionRatio > r.params.BridgeMaxPosition {
			continue
		}
		sim := 0.0
		if verse != nil {
			sim = common.CosineSimilarity(r.vectors.Average("chroma", r.in.Frames.Chroma, s.StartFrame, s.EndFrame), verse)
		}
		if sim >= r.params.BridgeMaxVerseSim {
			continue
		}

		instrumental := sig.VocalRatio < r.params.HasVocalsRatio
		if instrumental && math.Abs(sig.DurationBars-r.params.Middle8Bars) <= r.params.Middle8Tolerance {
			r.set(i, LabelMiddle8, 0.7, fmt.Sprintf("unique %.1f-bar instrumental after second chorus", sig.DurationBars))
			continue
		}
		r.set(i, LabelBridge, 0.6+0.2*(1-sim), fmt.Sprintf("unique section at %.0f%%, verse similarity %.2f", sig.PositionRatio*100, sim))
	}
}

func (r *labelRun) labelInstrumental() {
	if len(r.sections) < 2 {
		return
	}
	for i := range r.sections {
		sig := r.sections[i].Signature
		if !r.unlabeled(i) || sig.VocalRatio >= r.params.HasVocalsRatio {
			continue
		}
		if i > 0 && sig.AvgRMS < r.params.BreakdownDrop*r.sections[i-1].Signature.AvgRMS {
			r.set(i, LabelBreakdown, 0.6, fmt.Sprintf("energy drops to %.0f%% of previous section", 100*sig.AvgRMS/r.sections[i-1].Signature.AvgRMS))
			continue
		}
		if sig.RelativeEnergy >= r.params.HighEnergy {
			conf := 0.5
			if r.params.HighEnergy < 1 {
				conf += 0.3 * (sig.RelativeEnergy - r.params.HighEnergy) / (1 - r.params.HighEnergy)
			}
			r.set(i, LabelSolo, conf, fmt.Sprintf("no vocals, energy %.2f", sig.RelativeEnergy))
			continue
		}
		r.set(i, LabelInstrumental, 0.5, fmt.Sprintf("no vocals, energy %.2f", sig.RelativeEnergy))
	}
}

func (r *labelRun) labelFallback() {
	for i := range r.sections {
		if !r.unlabeled(i) {
			continue
		}
		if r.sections[i].Signature.HasVocals {
			r.set(i, LabelVerse, 0.35, "fallback: vocal section")
		} else {
			r.set(i, LabelSection, 0.2, "fallback: no rule matched")
		}
	}
}

// assignKeys estimates a key per section and keeps it when the estimate is
// confident, otherwise the global key is used
func (r *labelRun) assignKeys() {
	for i := range r.sections {
		s := r.sections[i]
		avg := r.vectors.Average("chroma", r.in.Frames.Chroma, s.StartFrame, s.EndFrame)
		key := r.keys.Estimate(avg)
		if key.Known() && key.Confidence >= r.params.SectionKeyMinConf {
			r.sections[i].Key = key.Name()
			continue
		}
		if r.in.GlobalKey.Known() {
			r.sections[i].Key = r.in.GlobalKey.Name()
		}
	}
}
