package theory

import (
	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
)

// Scale-degree triad qualities. Diminished triads are carried as minor since
// the template set has no diminished quality; the minor-key dominant is major
// (harmonic minor).
var (
	majorDegreeQualities = []tonal.ChordQuality{
		tonal.ChordMajor, tonal.ChordMinor, tonal.ChordMinor, tonal.ChordMajor,
		tonal.ChordMajor, tonal.ChordMinor, tonal.ChordMinor,
	}
	minorDegreeQualities = []tonal.ChordQuality{
		tonal.ChordMinor, tonal.ChordMinor, tonal.ChordMajor, tonal.ChordMinor,
		tonal.ChordMajor, tonal.ChordMajor, tonal.ChordMajor,
	}
)

// DegreeChord returns the diatonic triad on a 0-based scale degree
func DegreeChord(key tonal.Key, degree int) Chord {
	if !key.Known() || degree < 0 || degree > 6 {
		return NoChord
	}
	qualities := majorDegreeQualities
	if key.Mode == tonal.KeyModeMinor {
		qualities = minorDegreeQualities
	}
	return Chord{Root: key.Scale()[degree], Quality: qualities[degree]}
}

// Diatonic returns the diatonic triad built on root, or false when root is
// outside the scale
func Diatonic(key tonal.Key, root int) (Chord, bool) {
	d := key.Degree(root)
	if d < 0 {
		return NoChord, false
	}
	return DegreeChord(key, d), true
}

// Dominant returns the pitch class a fifth above the tonic
func Dominant(key tonal.Key) int {
	return (key.Root + 7) % chroma.NumPitchClasses
}

// IsTonic reports whether c is the tonic triad or its seventh chord
func IsTonic(key tonal.Key, c Chord) bool {
	return key.Known() && !c.None && c.Root == key.Root
}

// IsDominant reports whether c is a major chord on the fifth degree
func IsDominant(key tonal.Key, c Chord) bool {
	return key.Known() && c.IsMajor() && c.Root == Dominant(key)
}

// FifthBelow reports whether b's root lies a perfect fifth below a's
func FifthBelow(a, b Chord) bool {
	if a.None || b.None {
		return false
	}
	return (a.Root-b.Root+chroma.NumPitchClasses)%chroma.NumPitchClasses == 7
}

// FourthBelow reports whether b's root lies a perfect fourth below a's
func FourthBelow(a, b Chord) bool {
	if a.None || b.None {
		return false
	}
	return (a.Root-b.Root+chroma.NumPitchClasses)%chroma.NumPitchClasses == 5
}

// Cadence names the cadence formed by two consecutive chords. With a known
// key, "authentic" is V to I, "plagal" IV to I and "half" any move onto V.
// Without a key, a major chord falling a fifth reads as authentic and a
// fourth fall onto a major chord as plagal. An empty string means none.
func Cadence(key tonal.Key, a, b Chord) string {
	if a.None || b.None {
		return ""
	}
	if key.Known() {
		switch {
		case IsDominant(key, a) && IsTonic(key, b):
			return "authentic"
		case a.Root == (key.Root+5)%chroma.NumPitchClasses && IsTonic(key, b):
			return "plagal"
		case IsDominant(key, b) && !IsDominant(key, a):
			return "half"
		}
		return ""
	}
	switch {
	case a.IsMajor() && FifthBelow(a, b):
		return "authentic"
	case b.IsMajor() && FourthBelow(a, b):
		return "plagal"
	}
	return ""
}
