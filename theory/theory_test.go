package theory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
)

var cMajor = tonal.Key{Root: 0, Mode: tonal.KeyModeMajor, Confidence: 0.9}

func TestParseChordFormatsBack(t *testing.T) {
	for _, label := range []string{"C", "Am", "G7", "Fmaj7", "Dm7", "N", "Esus4", "A#m"} {
		chord, err := ParseChord(label)
		require.NoError(t, err, label)
		assert.Equal(t, label, chord.String())
	}

	flat := MustParseChord("Bbm7")
	assert.Equal(t, 10, flat.Root)
	assert.Equal(t, tonal.ChordMin7, flat.Quality)

	slash := MustParseChord("C/E")
	assert.Equal(t, "C", slash.String())

	for _, bad := range []string{"H", "Cdim", "X7"} {
		_, err := ParseChord(bad)
		assert.Error(t, err, bad)
	}
}

func TestChordTones(t *testing.T) {
	assert.Equal(t, []int{7, 11, 2, 5}, MustParseChord("G7").Tones())
	assert.True(t, MustParseChord("Am").Contains(4))
	assert.False(t, MustParseChord("Am").Contains(7))
	assert.Equal(t, "G", MustParseChord("G7").Triad().String())
	assert.Equal(t, "Dm", MustParseChord("Dm7").Triad().String())
	assert.Nil(t, NoChord.Tones())
}

func TestVoiceLeadingCost(t *testing.T) {
	cases := []struct {
		a, b string
		cost int
	}{
		{"C", "C", 0},
		{"C", "Am", 2},
		{"C", "G", 3},
		{"C", "Em", 1},
		{"C", "F#", 6},
		{"G7", "C", 4},
		{"C", "N", 0},
	}
	for _, tc := range cases {
		t.Run(tc.a+"->"+tc.b, func(t *testing.T) {
			a, b := MustParseChord(tc.a), MustParseChord(tc.b)
			assert.Equal(t, tc.cost, VoiceLeadingCost(a, b))
			assert.Equal(t, tc.cost, VoiceLeadingCost(b, a))
		})
	}
}

func TestDiatonicHarmony(t *testing.T) {
	assert.Equal(t, "Dm", DegreeChord(cMajor, 1).String())
	assert.Equal(t, "F", DegreeChord(cMajor, 3).String())

	aMinor := tonal.Key{Root: 9, Mode: tonal.KeyModeMinor}
	assert.Equal(t, "E", DegreeChord(aMinor, 4).String())
	assert.Equal(t, "Dm", DegreeChord(aMinor, 3).String())

	_, ok := Diatonic(cMajor, 1)
	assert.False(t, ok)
	chord, ok := Diatonic(cMajor, 9)
	require.True(t, ok)
	assert.Equal(t, "Am", chord.String())

	assert.True(t, IsDominant(cMajor, MustParseChord("G7")))
	assert.False(t, IsDominant(cMajor, MustParseChord("Gm")))
	assert.False(t, IsDominant(tonal.UnknownKey, MustParseChord("G")))
}

func TestCadence(t *testing.T) {
	c := MustParseChord
	assert.Equal(t, "authentic", Cadence(cMajor, c("G7"), c("C")))
	assert.Equal(t, "plagal", Cadence(cMajor, c("F"), c("C")))
	assert.Equal(t, "half", Cadence(cMajor, c("Dm"), c("G")))
	assert.Equal(t, "", Cadence(cMajor, c("C"), c("Am")))
	assert.Equal(t, "", Cadence(cMajor, NoChord, c("C")))

	assert.Equal(t, "authentic", Cadence(tonal.UnknownKey, c("D"), c("G")))
	assert.Equal(t, "plagal", Cadence(tonal.UnknownKey, c("C"), c("G")))
	assert.Equal(t, "", Cadence(tonal.UnknownKey, c("Dm"), c("G")))
}

func TestDefaultGenres(t *testing.T) {
	lib := DefaultGenres()
	assert.Equal(t, []string{"default", "edm", "jazz", "neo-soul", "pop", "rock"}, lib.Names())

	jazz := lib.Lookup("Jazz")
	assert.Equal(t, "jazz", jazz.Name)
	assert.Equal(t, "ii", jazz.Predominant)
	assert.InDelta(t, 0.8, jazz.SecondaryDominantProbability, 1e-12)
	assert.True(t, jazz.PrefersCadence("authentic"))

	assert.Equal(t, "neo-soul", lib.Lookup("Neo Soul").Name)
	assert.Equal(t, DefaultGenre, lib.Lookup("polka").Name)
	assert.Equal(t, DefaultGenre, lib.Lookup("").Name)
	assert.False(t, lib.Has("polka"))
}

func TestLoadGenresOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.yaml")
	doc := `
genres:
  pop:
    secondary_dominant_probability: 0.9
    extensions: {dominant: 0.6, major: 0.1, minor: 0.1}
    cadences: [plagal]
    predominant: ii
  bossa_nova:
    secondary_dominant_probability: 0.7
    extensions: {dominant: 0.8, major: 0.9, minor: 0.9}
    cadences: [authentic]
    predominant: ii
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	lib, err := LoadGenres(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, lib.Lookup("pop").SecondaryDominantProbability, 1e-12)
	assert.True(t, lib.Has("bossa-nova"))
	assert.True(t, lib.Has("jazz"))
}

func TestParseGenresRejectsBadDocuments(t *testing.T) {
	_, err := ParseGenres([]byte("genres: {}"))
	assert.Error(t, err)

	_, err = ParseGenres([]byte("genres:\n  odd:\n    secondary_dominant_probability: 1.5\n"))
	assert.Error(t, err)

	_, err = ParseGenres([]byte("genres:\n  odd:\n    predominant: vi\n"))
	assert.Error(t, err)

	_, err = ParseGenres([]byte("genres: [unclosed"))
	assert.Error(t, err)
}
