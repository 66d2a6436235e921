package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-forma/analysis"
	"github.com/RyanBlaney/sonido-forma/structure"
)

func TestLoadDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, analysis.DefaultConfig(), cfg.Analysis)
	assert.InDelta(t, 0.65, v.GetFloat64("analysis.cluster.threshold"), 1e-12)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forma.yaml")
	doc := `
log_level: debug
output:
  format: table
analysis:
  genre: jazz
  cluster:
    threshold: 0.7
  chords:
    transitions:
      stay: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("FORMA_OUTPUT_WORKERS", "6")
	t.Setenv("FORMA_ANALYSIS_MAX_ANALYSIS_FRAMES", "1500")

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.Equal(t, 6, cfg.Output.Workers)
	assert.Equal(t, "jazz", cfg.Analysis.Genre)
	assert.InDelta(t, 0.7, cfg.Analysis.Cluster.Threshold, 1e-12)
	assert.InDelta(t, 0.9, cfg.Analysis.Chords.Transitions.Stay, 1e-12)
	assert.Equal(t, 1500, cfg.Analysis.MaxAnalysisFrames)

	// untouched nested values keep their defaults
	assert.Equal(t, 4, cfg.Analysis.Cluster.Stride)
	assert.InDelta(t, 0.3, cfg.Analysis.Similarity.ChromaWeight, 1e-12)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":     func(c *Config) { c.LogLevel = "loud" },
		"format":        func(c *Config) { c.Output.Format = "xml" },
		"workers":       func(c *Config) { c.Output.Workers = 0 },
		"weights":       func(c *Config) { c.Analysis.Similarity = analysisWeights(0) },
		"threshold":     func(c *Config) { c.Analysis.Cluster.Threshold = 1.5 },
		"temperature":   func(c *Config) { c.Analysis.Chords.Temperature = 0 },
		"stay":          func(c *Config) { c.Analysis.Chords.Transitions.Stay = 1 },
		"merge floor":   func(c *Config) { c.Analysis.Corrector.MergeMinSections = 0 },
		"key threshold": func(c *Config) { c.Analysis.MinKeyConfidence = -0.1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}
}

func analysisWeights(w float64) structure.SimilarityParams {
	p := structure.DefaultSimilarityParams()
	p.ChromaWeight, p.MFCCWeight, p.RMSWeight, p.FluxWeight = w, w, w, w
	return p
}

func TestEffectiveIsYAML(t *testing.T) {
	cfg := Default()
	data, err := Effective(&cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_level: info")
	assert.Contains(t, string(data), "max_analysis_frames: 3000")
}
