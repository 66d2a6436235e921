package structure

import (
	"fmt"
)

// validate repairs implausible label assignments and returns review flags for
// runs it will not fix automatically
func (r *labelRun) validate() []ReviewFlag {
	r.promoteChorus()
	r.clampIntro()
	r.clampOutro()
	r.demoteOrphanPreChorus()
	return r.shortRuns()
}

// promoteChorus labels the best repeated cluster as chorus when no chorus was
// found, with a lowered confidence
func (r *labelRun) promoteChorus() {
	for _, s := range r.sections {
		if s.Label == LabelChorus {
			return
		}
	}
	id, score := r.bestRepeatedCluster()
	if id < 0 {
		return
	}
	for _, m := range r.in.Clusters[id].Sections {
		r.set(m, LabelChorus, 0.8*score, fmt.Sprintf("promoted: most chorus-like repeated cluster (score %.2f)", score))
	}
}

func (r *labelRun) clampIntro() {
	if len(r.sections) < 2 || r.sections[0].Label != LabelIntro {
		return
	}
	d := r.sections[0].Duration()
	if d <= r.params.IntroAbsoluteMax && (r.total <= 0 || d <= r.params.IntroMaxFraction*r.total) {
		return
	}
	if r.sections[0].Signature.HasVocals {
		r.set(0, LabelVerse, 0.3, fmt.Sprintf("intro too long (%.1fs), relabeled", d))
	} else {
		r.set(0, LabelInstrumental, 0.3, fmt.Sprintf("intro too long (%.1fs), relabeled", d))
	}
}

func (r *labelRun) clampOutro() {
	last := len(r.sections) - 1
	if last < 1 || r.sections[last].Label != LabelOutro {
		return
	}
	if d := r.sections[last].Duration(); d < r.params.OutroMinSeconds {
		r.set(last, LabelSection, 0.2, fmt.Sprintf("outro too short (%.1fs), relabeled", d))
	}
}

// demoteOrphanPreChorus turns a pre-chorus without a verse before it and a
// chorus after it into a verse
func (r *labelRun) demoteOrphanPreChorus() {
	for i, s := range r.sections {
		if s.Label != LabelPreChorus {
			continue
		}
		ok := i > 0 && i+1 < len(r.sections) &&
			r.sections[i-1].Label == LabelVerse && r.sections[i+1].Label == LabelChorus
		if !ok {
			r.set(i, LabelVerse, 0.35, "pre-chorus outside verse-chorus transition, demoted")
		}
	}
}

// shortRuns flags consecutive sections sharing a label that are all shorter
// than ShortSectionSecs
func (r *labelRun) shortRuns() []ReviewFlag {
	var flags []ReviewFlag
	short := func(s Section) bool {
		return s.Duration() < r.params.ShortSectionSecs
	}

	for i := 0; i < len(r.sections); {
		j := i + 1
		for j < len(r.sections) && r.sections[j].Label == r.sections[i].Label && short(r.sections[j]) && short(r.sections[i]) {
			j++
		}
		if j-i >= 2 {
			run := make([]int, 0, j-i)
			for k := i; k < j; k++ {
				run = append(run, k)
			}
			flags = append(flags, ReviewFlag{
				Sections: run,
				Reason:   fmt.Sprintf("%d consecutive short %s sections", j-i, r.sections[i].Label),
			})
		}
		i = j
	}
	return flags
}

// NumberVariants numbers sections sharing a label 1, 2, 3... in track order
func NumberVariants(sections []Section) {
	counters := make(map[Label]int)
	for i := range sections {
		counters[sections[i].Label]++
		sections[i].Variant = counters[sections[i].Label]
	}
}
