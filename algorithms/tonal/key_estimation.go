package tonal

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KeyProfile selects the tonal hierarchy used for key correlation
type KeyProfile int

const (
	KeyProfileKrumhansl KeyProfile = iota
	KeyProfileTemperley
	KeyProfileShaath
)

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

// MarshalText encodes the mode as "major" or "minor"
func (m KeyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the common spellings of both modes
func (m *KeyMode) UnmarshalText(text []byte) error {
	mode, ok := parseMode(string(text))
	if !ok {
		return fmt.Errorf("unknown key mode %q", string(text))
	}
	*m = mode
	return nil
}

var (
	majorScale = []int{0, 2, 4, 5, 7, 9, 11}
	minorScale = []int{0, 2, 3, 5, 7, 8, 10}
)

// Key is a tonal center. Root is -1 when the key is unknown.
type Key struct {
	Root       int     `json:"root"`
	Mode       KeyMode `json:"mode"`
	Confidence float64 `json:"confidence"`
}

// UnknownKey is returned when no key can be estimated
var UnknownKey = Key{Root: -1}

// Known reports whether the key has a root
func (k Key) Known() bool {
	return k.Root >= 0 && k.Root < chroma.NumPitchClasses
}

// Name returns e.g. "C major" or "unknown"
func (k Key) Name() string {
	if !k.Known() {
		return "unknown"
	}
	return chroma.PitchClassName(k.Root) + " " + k.Mode.String()
}

func (k Key) String() string {
	return k.Name()
}

// Scale returns the seven diatonic pitch classes of the key
func (k Key) Scale() []int {
	if !k.Known() {
		return nil
	}
	steps := majorScale
	if k.Mode == KeyModeMinor {
		steps = minorScale
	}
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = (k.Root + s) % chroma.NumPitchClasses
	}
	return out
}

// DiatonicMask marks the pitch classes belonging to the key. An unknown key
// yields nil.
func (k Key) DiatonicMask() []bool {
	if !k.Known() {
		return nil
	}
	mask := make([]bool, chroma.NumPitchClasses)
	for _, pc := range k.Scale() {
		mask[pc] = true
	}
	return mask
}

// Degree returns the 0-based scale degree of pc, or -1 when pc is chromatic
func (k Key) Degree(pc int) int {
	for i, s := range k.Scale() {
		if s == ((pc%12)+12)%12 {
			return i
		}
	}
	return -1
}

// Relative returns the relative major/minor key
func (k Key) Relative() Key {
	if !k.Known() {
		return k
	}
	if k.Mode == KeyModeMajor {
		return Key{Root: (k.Root + 9) % 12, Mode: KeyModeMinor, Confidence: k.Confidence}
	}
	return Key{Root: (k.Root + 3) % 12, Mode: KeyModeMajor, Confidence: k.Confidence}
}

// ParseKey reads a key name such as "C", "F# major", "Bbm" or "A minor". A
// non-empty mode overrides any mode carried by the name.
func ParseKey(name, mode string) (Key, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownKey, false
	}

	fields := strings.Fields(name)
	tonic := fields[0]
	parsedMode := KeyModeMajor

	if len(fields) > 1 {
		m, ok := parseMode(fields[1])
		if !ok {
			return UnknownKey, false
		}
		parsedMode = m
	} else if strings.HasSuffix(tonic, "m") && len(tonic) > 1 {
		tonic = strings.TrimSuffix(tonic, "m")
		parsedMode = KeyModeMinor
	}

	root, ok := chroma.ParsePitchClass(tonic)
	if !ok {
		return UnknownKey, false
	}
	if mode != "" {
		m, ok := parseMode(mode)
		if !ok {
			return UnknownKey, false
		}
		parsedMode = m
	}
	return Key{Root: root, Mode: parsedMode, Confidence: 1}, true
}

func parseMode(s string) (KeyMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major", "maj", "ionian", "":
		return KeyModeMajor, true
	case "minor", "min", "aeolian", "m":
		return KeyModeMinor, true
	}
	return KeyModeMajor, false
}

// KeyProfileTemplate holds the 12-bin major and minor hierarchies for a
// profile, indexed from the tonic.
type KeyProfileTemplate struct {
	MajorProfile []float64 `json:"major_profile"`
	MinorProfile []float64 `json:"minor_profile"`
	Name         string    `json:"name"`
}

var keyProfiles = map[KeyProfile]KeyProfileTemplate{
	KeyProfileKrumhansl: {
		Name:         "Krumhansl-Schmuckler",
		MajorProfile: []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88},
		MinorProfile: []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17},
	},
	KeyProfileTemperley: {
		Name:         "Temperley",
		MajorProfile: []float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		MinorProfile: []float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
	},
	KeyProfileShaath: {
		Name:         "Shaath",
		MajorProfile: []float64{6.6, 2.0, 3.5, 2.3, 4.6, 4.0, 2.5, 5.2, 2.4, 3.7, 2.3, 3.4},
		MinorProfile: []float64{6.5, 2.7, 3.5, 5.4, 2.6, 3.5, 2.5, 4.7, 4.0, 2.7, 3.4, 3.2},
	},
}

// KeyEstimator correlates a chroma profile against the 24 rotated major and
// minor key profiles.
//
// References:
//   - Krumhansl, C. L. (1990). "Cognitive Foundations of Musical Pitch".
//     Oxford University Press.
//   - Temperley, D. (1999). "What's Key for Key? The Krumhansl-Schmuckler
//     Key-Finding Algorithm Reconsidered". Music Perception 17(1).
type KeyEstimator struct {
	profile        KeyProfileTemplate
	chromaAnalyzer *chroma.ChromaVectorAnalyzer
}

// NewKeyEstimator creates a Krumhansl-Schmuckler estimator
func NewKeyEstimator() *KeyEstimator {
	return NewKeyEstimatorWithProfile(KeyProfileKrumhansl)
}

// NewKeyEstimatorWithProfile creates an estimator for a specific profile
func NewKeyEstimatorWithProfile(profile KeyProfile) *KeyEstimator {
	template, ok := keyProfiles[profile]
	if !ok {
		template = keyProfiles[KeyProfileKrumhansl]
	}
	return &KeyEstimator{
		profile:        template,
		chromaAnalyzer: chroma.NewChromaVectorAnalyzer(),
	}
}

// Estimate returns the best correlating key. Confidence maps the Pearson
// correlation from [-1,1] to [0,1]. A silent or flat profile yields UnknownKey.
func (ke *KeyEstimator) Estimate(profile []float64) Key {
	if len(profile) != chroma.NumPitchClasses || floats.Max(profile)-floats.Min(profile) <= 1e-12 {
		return UnknownKey
	}

	best := UnknownKey
	bestCorr := -2.0
	for root := 0; root < chroma.NumPitchClasses; root++ {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			corr := ke.Correlate(profile, Key{Root: root, Mode: mode})
			if corr > bestCorr {
				bestCorr = corr
				best = Key{Root: root, Mode: mode}
			}
		}
	}
	best.Confidence = (bestCorr + 1) / 2
	return best
}

// Correlate returns the Pearson correlation of profile with the key's
// rotated template
func (ke *KeyEstimator) Correlate(profile []float64, key Key) float64 {
	if !key.Known() || len(profile) != chroma.NumPitchClasses {
		return 0
	}
	template := ke.profile.MajorProfile
	if key.Mode == KeyModeMinor {
		template = ke.profile.MinorProfile
	}
	rotated := ke.chromaAnalyzer.CircularShift(template, key.Root)
	corr := stat.Correlation(profile, rotated, nil)
	if math.IsNaN(corr) {
		return 0
	}
	return corr
}

// EstimateSequence estimates the key of the average of a chroma sequence
func (ke *KeyEstimator) EstimateSequence(vectors [][]float64) Key {
	if len(vectors) == 0 {
		return UnknownKey
	}
	return ke.Estimate(ke.chromaAnalyzer.Average(vectors, 0, len(vectors)))
}

// ProfileName returns the name of the profile in use
func (ke *KeyEstimator) ProfileName() string {
	return ke.profile.Name
}
