package tonal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKrumhanslFindsCMajor(t *testing.T) {
	ke := NewKeyEstimator()

	scale := []float64{1, 0, 1, 0, 1, 1, 0, 1, 0, 1, 0, 1}
	key := ke.Estimate(scale)
	assert.Equal(t, 0, key.Root)
	assert.Equal(t, KeyModeMajor, key.Mode)
	assert.Equal(t, "C major", key.Name())
	assert.Greater(t, key.Confidence, 0.5)
	assert.LessOrEqual(t, key.Confidence, 1.0)

	// the same profile shifted up a fifth
	shifted := NewKeyEstimator().chromaAnalyzer.CircularShift(scale, 7)
	assert.Equal(t, "G major", ke.Estimate(shifted).Name())
}

func TestFlatProfileIsUnknown(t *testing.T) {
	ke := NewKeyEstimatorWithProfile(KeyProfileTemperley)

	flat := make([]float64, 12)
	for i := range flat {
		flat[i] = 0.4
	}
	assert.False(t, ke.Estimate(flat).Known())
	assert.False(t, ke.Estimate(nil).Known())
	assert.False(t, ke.EstimateSequence(nil).Known())
	assert.Equal(t, "unknown", UnknownKey.Name())
	assert.Nil(t, UnknownKey.DiatonicMask())
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		name, mode string
		want       string
	}{
		{"C", "", "C major"},
		{"F# major", "", "F# major"},
		{"Bbm", "", "A# minor"},
		{"A", "minor", "A minor"},
		{"e minor", "", "E minor"},
		{"Db", "maj", "C# major"},
	}
	for _, tc := range cases {
		key, ok := ParseKey(tc.name, tc.mode)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.want, key.Name(), tc.name)
	}

	for _, bad := range []string{"", "H", "C dorian"} {
		key, ok := ParseKey(bad, "")
		assert.False(t, ok, bad)
		assert.False(t, key.Known(), bad)
	}
}

func TestKeyScaleHelpers(t *testing.T) {
	g := Key{Root: 7, Mode: KeyModeMajor}
	assert.Equal(t, []int{7, 9, 11, 0, 2, 4, 6}, g.Scale())
	assert.Equal(t, 4, g.Degree(2))
	assert.Equal(t, -1, g.Degree(5))

	mask := g.DiatonicMask()
	assert.True(t, mask[6])
	assert.False(t, mask[5])

	assert.Equal(t, "E minor", g.Relative().Name())
	assert.Equal(t, "G major", g.Relative().Relative().Name())
}

func TestKeyModeText(t *testing.T) {
	data, err := json.Marshal(Key{Root: 9, Mode: KeyModeMinor, Confidence: 0.8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"root":9,"mode":"minor","confidence":0.8}`, string(data))

	var k Key
	require.NoError(t, json.Unmarshal(data, &k))
	assert.Equal(t, KeyModeMinor, k.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"lydian"}`), &k))
}
