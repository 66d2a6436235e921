package theory

import (
	"fmt"

	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/logging"
	"github.com/RyanBlaney/sonido-forma/structure"
)

// MergeInput is the material for the structural merge pass
type MergeInput struct {
	Sections    []structure.Section
	Events      []tonal.ChordEvent
	Key         tonal.Key
	TempoBPM    float64
	BeatsPerBar int
}

// Merge records two adjacent sections joined into one
type Merge struct {
	Left   int    `json:"left"`
	Right  int    `json:"right"`
	Kept   string `json:"kept_label"`
	Reason string `json:"reason"`
}

// MergeSections joins adjacent sections when no cadence marks the boundary
// and at least one side is shorter than the minimum bar count. It repeats
// until no pair qualifies or the minimum section count is reached, so
// running it again on its output changes nothing. The longer side keeps its
// label and cluster. Input sections are not modified.
func (c *Corrector) MergeSections(in MergeInput) ([]structure.Section, []Merge) {
	logger := c.logger.WithFields(logging.Fields{
		"function": "MergeSections",
	})

	sections := make([]structure.Section, len(in.Sections))
	copy(sections, in.Sections)

	var merges []Merge
	for len(sections) > max(c.params.MergeMinSections, 1) {
		i := c.mergeCandidate(sections, in)
		if i < 0 {
			break
		}
		merged, m := c.mergePair(sections[i], sections[i+1], in)
		m.Left, m.Right = i, i+1
		merges = append(merges, m)

		sections[i] = merged
		sections = append(sections[:i+1], sections[i+2:]...)
	}

	for i := range sections {
		sections[i].Index = i
	}
	structure.NumberVariants(sections)

	if len(merges) > 0 {
		logger.Debug("Sections merged", logging.Fields{
			"merges":   len(merges),
			"sections": len(sections),
		})
	}
	return sections, merges
}

func (c *Corrector) mergeCandidate(sections []structure.Section, in MergeInput) int {
	for i := 0; i+1 < len(sections); i++ {
		left, right := sections[i], sections[i+1]
		if c.bars(left, in) >= c.params.MergeMinBars && c.bars(right, in) >= c.params.MergeMinBars {
			continue
		}
		if cadenceAtBoundary(left, right, in) {
			continue
		}
		return i
	}
	return -1
}

func (c *Corrector) bars(s structure.Section, in MergeInput) float64 {
	if s.Signature.DurationBars > 0 {
		return s.Signature.DurationBars
	}
	tempo := in.TempoBPM
	if tempo <= 0 {
		tempo = 120
	}
	bpb := in.BeatsPerBar
	if bpb <= 0 {
		bpb = 4
	}
	return s.Duration() * tempo / 60 / float64(bpb)
}

// cadenceAtBoundary checks the last two chords of the left section and the
// chord pair straddling the boundary
func cadenceAtBoundary(left, right structure.Section, in MergeInput) bool {
	leftChords := distinctChords(in.Events, left.StartTime, left.EndTime)
	rightChords := distinctChords(in.Events, right.StartTime, right.EndTime)

	if n := len(leftChords); n >= 2 && Cadence(in.Key, leftChords[n-2], leftChords[n-1]) != "" {
		return true
	}
	if len(leftChords) > 0 && len(rightChords) > 0 {
		return Cadence(in.Key, leftChords[len(leftChords)-1], rightChords[0]) != ""
	}
	return false
}

// distinctChords lists the chord changes inside [start, end), skipping N
func distinctChords(events []tonal.ChordEvent, start, end float64) []Chord {
	var out []Chord
	for _, ev := range events {
		if ev.Timestamp < start || ev.Timestamp >= end {
			continue
		}
		chord, err := ParseChord(ev.Chord)
		if err != nil || chord.None {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == chord {
			continue
		}
		out = append(out, chord)
	}
	return out
}

func (c *Corrector) mergePair(left, right structure.Section, in MergeInput) (structure.Section, Merge) {
	keep, other := left, right
	if right.Duration() > left.Duration() {
		keep, other = right, left
	}

	merged := keep
	merged.StartFrame = left.StartFrame
	merged.StartTime = left.StartTime
	merged.EndFrame = right.EndFrame
	merged.EndTime = right.EndTime
	merged.Reason = fmt.Sprintf("%s; merged with %s (no cadence at boundary)", keep.Reason, other.Label)
	merged.Signature = mergeSignatures(left, right)
	merged.Signature.DurationSeconds = merged.Duration()
	merged.Signature.DurationBars = c.bars(left, in) + c.bars(right, in)

	return merged, Merge{
		Kept:   string(keep.Label),
		Reason: fmt.Sprintf("%.1f and %.1f bars without a cadence", c.bars(left, in), c.bars(right, in)),
	}
}

// mergeSignatures combines two adjacent signatures over their joint span.
// Means are weighted by duration; the trends stay with the longer side.
// Repetition fields are left to the caller, which knows the new clusters.
func mergeSignatures(left, right structure.Section) structure.Signature {
	l, r := left.Signature, right.Signature
	wl, wr := left.Duration(), right.Duration()
	if wl+wr <= 0 {
		wl, wr = 1, 1
	}
	mean := func(a, b float64) float64 {
		return (a*wl + b*wr) / (wl + wr)
	}

	sig := l
	if wr > wl {
		sig = r
	}
	sig.AvgRMS = mean(l.AvgRMS, r.AvgRMS)
	sig.MaxRMS = max(l.MaxRMS, r.MaxRMS)
	sig.SpectralFluxMean = mean(l.SpectralFluxMean, r.SpectralFluxMean)
	sig.ChromaEntropyMean = mean(l.ChromaEntropyMean, r.ChromaEntropyMean)
	sig.VocalRatio = mean(l.VocalRatio, r.VocalRatio)
	sig.HasVocals = l.HasVocals || r.HasVocals
	sig.RelativeEnergy = mean(l.RelativeEnergy, r.RelativeEnergy)
	// the duration-weighted mean of two adjacent midpoints is the joint midpoint
	sig.PositionRatio = mean(l.PositionRatio, r.PositionRatio)
	sig.VocalEstimated = l.VocalEstimated || r.VocalEstimated
	return sig
}
