package analysis

import (
	"github.com/RyanBlaney/sonido-forma/algorithms/tonal"
	"github.com/RyanBlaney/sonido-forma/structure"
	"github.com/RyanBlaney/sonido-forma/theory"
)

// Config gathers every tunable of the pipeline
type Config struct {
	// Frame count above which features are averaged down before the
	// quadratic stages; 0 disables downsampling
	MaxAnalysisFrames int `json:"max_analysis_frames" yaml:"max_analysis_frames" mapstructure:"max_analysis_frames"`
	// Compare full-resolution frames when clustering a downsampled track
	FullResolutionClustering bool `json:"full_resolution_clustering" yaml:"full_resolution_clustering" mapstructure:"full_resolution_clustering"`

	// Minimum Krumhansl confidence for an estimated key when the bundle has none
	MinKeyConfidence float64 `json:"min_key_confidence" yaml:"min_key_confidence" mapstructure:"min_key_confidence"`
	// Genre overrides the bundle's genre when set
	Genre string `json:"genre" yaml:"genre" mapstructure:"genre"`

	EnableCorrection bool `json:"enable_correction" yaml:"enable_correction" mapstructure:"enable_correction"`
	EnableMerge      bool `json:"enable_merge" yaml:"enable_merge" mapstructure:"enable_merge"`
	IncludeNovelty   bool `json:"include_novelty" yaml:"include_novelty" mapstructure:"include_novelty"`

	Similarity structure.SimilarityParams `json:"similarity" yaml:"similarity" mapstructure:"similarity"`
	Novelty    structure.NoveltyParams    `json:"novelty" yaml:"novelty" mapstructure:"novelty"`
	Cluster    structure.ClusterParams    `json:"cluster" yaml:"cluster" mapstructure:"cluster"`
	Label      structure.LabelParams      `json:"label" yaml:"label" mapstructure:"label"`
	Chords     tonal.ChordParams          `json:"chords" yaml:"chords" mapstructure:"chords"`
	Corrector  theory.CorrectorParams     `json:"corrector" yaml:"corrector" mapstructure:"corrector"`
}

// DefaultConfig returns the standard pipeline configuration
func DefaultConfig() Config {
	return Config{
		MaxAnalysisFrames:        3000,
		FullResolutionClustering: true,
		MinKeyConfidence:         0.6,
		EnableCorrection:         true,
		EnableMerge:              true,
		Similarity:               structure.DefaultSimilarityParams(),
		Novelty:                  structure.DefaultNoveltyParams(),
		Cluster:                  structure.DefaultClusterParams(),
		Label:                    structure.DefaultLabelParams(),
		Chords:                   tonal.DefaultChordParams(),
		Corrector:                theory.DefaultCorrectorParams(),
	}
}
