package theory

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
)

// Chord is a chord label: a root pitch class and a quality. The zero value is
// not a valid chord; use NoChord for beats without harmony.
type Chord struct {
	Root    int
	Quality tonal.ChordQuality
	None    bool
}

// NoChord is the "N" label
var NoChord = Chord{Root: -1, None: true}

// ParseChord reads labels such as "C", "Am", "G7", "Fmaj7", "Dm7", "Bbsus4"
// and "N". A slash bass ("C/E") is accepted and ignored.
func ParseChord(label string) (Chord, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == tonal.NoChord {
		return NoChord, nil
	}
	if i := strings.IndexByte(label, '/'); i > 0 {
		label = label[:i]
	}

	n := 1
	if len(label) > 1 && (label[1] == '#' || label[1] == 'b') {
		n = 2
	}
	root, ok := chroma.ParsePitchClass(label[:n])
	if !ok {
		return NoChord, fmt.Errorf("invalid chord root in %q", label)
	}
	quality, ok := tonal.ParseQualitySuffix(label[n:])
	if !ok {
		return NoChord, fmt.Errorf("invalid chord quality in %q", label)
	}
	return Chord{Root: root, Quality: quality}, nil
}

// MustParseChord is ParseChord for known-good literals
func MustParseChord(label string) Chord {
	c, err := ParseChord(label)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Chord) String() string {
	if c.None {
		return tonal.NoChord
	}
	return tonal.ChordName(c.Root, c.Quality)
}

// Tones returns the chord's pitch classes, root first
func (c Chord) Tones() []int {
	if c.None {
		return nil
	}
	intervals := c.Quality.Intervals()
	out := make([]int, len(intervals))
	for i, iv := range intervals {
		out[i] = (c.Root + iv) % chroma.NumPitchClasses
	}
	return out
}

// Contains reports whether pc is a chord tone
func (c Chord) Contains(pc int) bool {
	for _, t := range c.Tones() {
		if t == pc {
			return true
		}
	}
	return false
}

// Triad drops the seventh, keeping the third's quality
func (c Chord) Triad() Chord {
	switch c.Quality {
	case tonal.ChordDom7, tonal.ChordMaj7:
		c.Quality = tonal.ChordMajor
	case tonal.ChordMin7:
		c.Quality = tonal.ChordMinor
	}
	return c
}

// IsMajor reports whether the chord has a major third
func (c Chord) IsMajor() bool {
	return !c.None && (c.Quality == tonal.ChordMajor || c.Quality == tonal.ChordDom7 || c.Quality == tonal.ChordMaj7)
}

// IsMinor reports whether the chord has a minor third
func (c Chord) IsMinor() bool {
	return !c.None && (c.Quality == tonal.ChordMinor || c.Quality == tonal.ChordMin7)
}

// Fit scores how well a chroma vector supports the chord
func (c Chord) Fit(v []float64) float64 {
	if c.None {
		return 0
	}
	return tonal.TemplateFit(v, c.Root, c.Quality)
}

// VoiceLeadingCost is the smallest total semitone movement taking the tones
// of a to the tones of b, pairing voices one to one. Extra voices in the
// larger chord move to their nearest tone in the other chord. No-chord
// endpoints cost 0.
func VoiceLeadingCost(a, b Chord) int {
	ta, tb := a.Tones(), b.Tones()
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}

	best := -1
	used := make([]bool, len(tb))
	var assign func(i, cost int)
	assign = func(i, cost int) {
		if best >= 0 && cost >= best {
			return
		}
		if i == len(ta) {
			for j, t := range tb {
				if !used[j] {
					cost += nearest(t, ta)
				}
			}
			if best < 0 || cost < best {
				best = cost
			}
			return
		}
		for j, t := range tb {
			if used[j] {
				continue
			}
			used[j] = true
			assign(i+1, cost+common.CircularDistance(ta[i], t, chroma.NumPitchClasses))
			used[j] = false
		}
	}
	assign(0, 0)
	return best
}

func nearest(pc int, tones []int) int {
	d := chroma.NumPitchClasses
	for _, t := range tones {
		d = min(d, common.CircularDistance(pc, t, chroma.NumPitchClasses))
	}
	return d
}
