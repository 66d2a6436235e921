package structure

// SimilarityParams configures the frame similarity matrix
type SimilarityParams struct {
	ChromaWeight float64 `json:"chroma_weight" yaml:"chroma_weight" mapstructure:"chroma_weight"`
	MFCCWeight   float64 `json:"mfcc_weight" yaml:"mfcc_weight" mapstructure:"mfcc_weight"`
	RMSWeight    float64 `json:"rms_weight" yaml:"rms_weight" mapstructure:"rms_weight"`
	FluxWeight   float64 `json:"flux_weight" yaml:"flux_weight" mapstructure:"flux_weight"`

	BlockSize       int `json:"block_size" yaml:"block_size" mapstructure:"block_size"`
	CoarseThreshold int `json:"coarse_threshold" yaml:"coarse_threshold" mapstructure:"coarse_threshold"`
	CoarseStride    int `json:"coarse_stride" yaml:"coarse_stride" mapstructure:"coarse_stride"`
}

// DefaultSimilarityParams returns the standard component weights
func DefaultSimilarityParams() SimilarityParams {
	return SimilarityParams{
		ChromaWeight:    0.3,
		MFCCWeight:      0.2,
		RMSWeight:       0.3,
		FluxWeight:      0.2,
		BlockSize:       64,
		CoarseThreshold: 4000,
		CoarseStride:    2,
	}
}

// NoveltyParams configures kernel novelty, peak picking and refinement
type NoveltyParams struct {
	// Kernel widths in beats for the phrase, section and movement scales
	PhraseBeats    float64 `json:"phrase_beats" yaml:"phrase_beats" mapstructure:"phrase_beats"`
	SectionBeats   float64 `json:"section_beats" yaml:"section_beats" mapstructure:"section_beats"`
	MovementBeats  float64 `json:"movement_beats" yaml:"movement_beats" mapstructure:"movement_beats"`
	PhraseWeight   float64 `json:"phrase_weight" yaml:"phrase_weight" mapstructure:"phrase_weight"`
	SectionWeight  float64 `json:"section_weight" yaml:"section_weight" mapstructure:"section_weight"`
	MovementWeight float64 `json:"movement_weight" yaml:"movement_weight" mapstructure:"movement_weight"`

	// Gaussian taper sigma as a fraction of the kernel half-width
	TaperRatio      float64 `json:"taper_ratio" yaml:"taper_ratio" mapstructure:"taper_ratio"`
	MaxKernelFrames int     `json:"max_kernel_frames" yaml:"max_kernel_frames" mapstructure:"max_kernel_frames"`

	MedianWindow  int `json:"median_window" yaml:"median_window" mapstructure:"median_window"`
	AverageWindow int `json:"average_window" yaml:"average_window" mapstructure:"average_window"`

	PeakWindowSeconds float64 `json:"peak_window_seconds" yaml:"peak_window_seconds" mapstructure:"peak_window_seconds"`
	SlowTempo         float64 `json:"slow_tempo" yaml:"slow_tempo" mapstructure:"slow_tempo"`
	FastTempo         float64 `json:"fast_tempo" yaml:"fast_tempo" mapstructure:"fast_tempo"`
	SlowSensitivity   float64 `json:"slow_sensitivity" yaml:"slow_sensitivity" mapstructure:"slow_sensitivity"`
	MediumSensitivity float64 `json:"medium_sensitivity" yaml:"medium_sensitivity" mapstructure:"medium_sensitivity"`
	FastSensitivity   float64 `json:"fast_sensitivity" yaml:"fast_sensitivity" mapstructure:"fast_sensitivity"`

	MinDistanceBeats   float64 `json:"min_distance_beats" yaml:"min_distance_beats" mapstructure:"min_distance_beats"`
	MinDistanceSeconds float64 `json:"min_distance_seconds" yaml:"min_distance_seconds" mapstructure:"min_distance_seconds"`
	MaxDistanceSeconds float64 `json:"max_distance_seconds" yaml:"max_distance_seconds" mapstructure:"max_distance_seconds"`
	MinRelativeHeight  float64 `json:"min_relative_height" yaml:"min_relative_height" mapstructure:"min_relative_height"`

	MinPeaks        int     `json:"min_peaks" yaml:"min_peaks" mapstructure:"min_peaks"`
	MaxPeaks        int     `json:"max_peaks" yaml:"max_peaks" mapstructure:"max_peaks"`
	LowRetryFactor  float64 `json:"low_retry_factor" yaml:"low_retry_factor" mapstructure:"low_retry_factor"`
	HighRetryFactor float64 `json:"high_retry_factor" yaml:"high_retry_factor" mapstructure:"high_retry_factor"`

	EnableRefinement        bool    `json:"enable_refinement" yaml:"enable_refinement" mapstructure:"enable_refinement"`
	RefineWindowBeats       float64 `json:"refine_window_beats" yaml:"refine_window_beats" mapstructure:"refine_window_beats"`
	RefineJointScore        float64 `json:"refine_joint_score" yaml:"refine_joint_score" mapstructure:"refine_joint_score"`
	RefineEnergyRatio       float64 `json:"refine_energy_ratio" yaml:"refine_energy_ratio" mapstructure:"refine_energy_ratio"`
	RefineTimbreJump        float64 `json:"refine_timbre_jump" yaml:"refine_timbre_jump" mapstructure:"refine_timbre_jump"`
	SnapToBeats             bool    `json:"snap_to_beats" yaml:"snap_to_beats" mapstructure:"snap_to_beats"`
	HardNoveltyRatio        float64 `json:"hard_novelty_ratio" yaml:"hard_novelty_ratio" mapstructure:"hard_novelty_ratio"`
	HardEnergyRatio         float64 `json:"hard_energy_ratio" yaml:"hard_energy_ratio" mapstructure:"hard_energy_ratio"`
	HardEnergyWindowSeconds float64 `json:"hard_energy_window_seconds" yaml:"hard_energy_window_seconds" mapstructure:"hard_energy_window_seconds"`
}

// DefaultNoveltyParams returns tempo-adaptive defaults
func DefaultNoveltyParams() NoveltyParams {
	return NoveltyParams{
		PhraseBeats:             8,
		SectionBeats:            16,
		MovementBeats:           32,
		PhraseWeight:            0.25,
		SectionWeight:           0.5,
		MovementWeight:          0.25,
		TaperRatio:              0.5,
		MaxKernelFrames:         512,
		MedianWindow:            5,
		AverageWindow:           3,
		PeakWindowSeconds:       10,
		SlowTempo:               90,
		FastTempo:               140,
		SlowSensitivity:         1.0,
		MediumSensitivity:       1.2,
		FastSensitivity:         1.5,
		MinDistanceBeats:        8,
		MinDistanceSeconds:      1.5,
		MaxDistanceSeconds:      12,
		MinRelativeHeight:       0.1,
		MinPeaks:                3,
		MaxPeaks:                24,
		LowRetryFactor:          0.5,
		HighRetryFactor:         1.5,
		EnableRefinement:        true,
		RefineWindowBeats:       4,
		RefineJointScore:        0.5,
		RefineEnergyRatio:       1.5,
		RefineTimbreJump:        0.35,
		SnapToBeats:             true,
		HardNoveltyRatio:        0.85,
		HardEnergyRatio:         1.5,
		HardEnergyWindowSeconds: 2.0,
	}
}

// ClusterParams configures section materialization and clustering
type ClusterParams struct {
	Threshold             float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Stride                int     `json:"stride" yaml:"stride" mapstructure:"stride"`
	MinSectionFrames      int     `json:"min_section_frames" yaml:"min_section_frames" mapstructure:"min_section_frames"`
	RespectHardBoundaries bool    `json:"respect_hard_boundaries" yaml:"respect_hard_boundaries" mapstructure:"respect_hard_boundaries"`
	CacheSize             int     `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// DefaultClusterParams returns the standard clustering settings
func DefaultClusterParams() ClusterParams {
	return ClusterParams{
		Threshold:             0.65,
		Stride:                4,
		MinSectionFrames:      2,
		RespectHardBoundaries: true,
		CacheSize:             1024,
	}
}

// LabelParams holds the labeling rule thresholds. Energies are relative to the
// loudest section, ratios are in [0,1].
type LabelParams struct {
	// chorus score coefficients (sum to 1)
	ChorusRepetitionWeight float64 `json:"chorus_repetition_weight" yaml:"chorus_repetition_weight" mapstructure:"chorus_repetition_weight"`
	ChorusEnergyWeight     float64 `json:"chorus_energy_weight" yaml:"chorus_energy_weight" mapstructure:"chorus_energy_weight"`
	ChorusVocalWeight      float64 `json:"chorus_vocal_weight" yaml:"chorus_vocal_weight" mapstructure:"chorus_vocal_weight"`
	ChorusDurationWeight   float64 `json:"chorus_duration_weight" yaml:"chorus_duration_weight" mapstructure:"chorus_duration_weight"`
	ChorusPreferredRepeats int     `json:"chorus_preferred_repeats" yaml:"chorus_preferred_repeats" mapstructure:"chorus_preferred_repeats"`
	ChorusMinScore         float64 `json:"chorus_min_score" yaml:"chorus_min_score" mapstructure:"chorus_min_score"`
	ChorusTypicalBars      float64 `json:"chorus_typical_bars" yaml:"chorus_typical_bars" mapstructure:"chorus_typical_bars"`

	VocalThreshold float64 `json:"vocal_threshold" yaml:"vocal_threshold" mapstructure:"vocal_threshold"`
	HasVocalsRatio float64 `json:"has_vocals_ratio" yaml:"has_vocals_ratio" mapstructure:"has_vocals_ratio"`
	VerseMaxEnergy float64 `json:"verse_max_energy" yaml:"verse_max_energy" mapstructure:"verse_max_energy"`
	LowEnergy      float64 `json:"low_energy" yaml:"low_energy" mapstructure:"low_energy"`
	HighEnergy     float64 `json:"high_energy" yaml:"high_energy" mapstructure:"high_energy"`

	IntroMaxSeconds   float64 `json:"intro_max_seconds" yaml:"intro_max_seconds" mapstructure:"intro_max_seconds"`
	IntroMaxFraction  float64 `json:"intro_max_fraction" yaml:"intro_max_fraction" mapstructure:"intro_max_fraction"`
	IntroAbsoluteMax  float64 `json:"intro_absolute_max_seconds" yaml:"intro_absolute_max_seconds" mapstructure:"intro_absolute_max_seconds"`
	OutroLongSeconds  float64 `json:"outro_long_seconds" yaml:"outro_long_seconds" mapstructure:"outro_long_seconds"`
	OutroMinSeconds   float64 `json:"outro_min_seconds" yaml:"outro_min_seconds" mapstructure:"outro_min_seconds"`
	FadeSlope         float64 `json:"fade_slope" yaml:"fade_slope" mapstructure:"fade_slope"`
	PreChorusMaxSecs  float64 `json:"pre_chorus_max_seconds" yaml:"pre_chorus_max_seconds" mapstructure:"pre_chorus_max_seconds"`
	PreChorusMaxBars  float64 `json:"pre_chorus_max_bars" yaml:"pre_chorus_max_bars" mapstructure:"pre_chorus_max_bars"`
	PreChorusFluxRise float64 `json:"pre_chorus_flux_rise" yaml:"pre_chorus_flux_rise" mapstructure:"pre_chorus_flux_rise"`
	BridgeMinPosition float64 `json:"bridge_min_position" yaml:"bridge_min_position" mapstructure:"bridge_min_position"`
	BridgeMaxPosition float64 `json:"bridge_max_position" yaml:"bridge_max_position" mapstructure:"bridge_max_position"`
	BridgeMaxVerseSim float64 `json:"bridge_max_verse_similarity" yaml:"bridge_max_verse_similarity" mapstructure:"bridge_max_verse_similarity"`
	Middle8Bars       float64 `json:"middle8_bars" yaml:"middle8_bars" mapstructure:"middle8_bars"`
	Middle8Tolerance  float64 `json:"middle8_tolerance" yaml:"middle8_tolerance" mapstructure:"middle8_tolerance"`
	BreakdownDrop     float64 `json:"breakdown_drop" yaml:"breakdown_drop" mapstructure:"breakdown_drop"`
	ShortSectionSecs  float64 `json:"short_section_seconds" yaml:"short_section_seconds" mapstructure:"short_section_seconds"`
	SectionKeyMinConf float64 `json:"section_key_min_confidence" yaml:"section_key_min_confidence" mapstructure:"section_key_min_confidence"`
}

// DefaultLabelParams returns the standard labeling thresholds
func DefaultLabelParams() LabelParams {
	return LabelParams{
		ChorusRepetitionWeight: 0.4,
		ChorusEnergyWeight:     0.3,
		ChorusVocalWeight:      0.2,
		ChorusDurationWeight:   0.1,
		ChorusPreferredRepeats: 3,
		ChorusMinScore:         0.5,
		ChorusTypicalBars:      8,
		VocalThreshold:         0.5,
		HasVocalsRatio:         0.3,
		VerseMaxEnergy:         0.9,
		LowEnergy:              0.5,
		HighEnergy:             0.75,
		IntroMaxSeconds:        20,
		IntroMaxFraction:       0.25,
		IntroAbsoluteMax:       45,
		OutroLongSeconds:       20,
		OutroMinSeconds:        4,
		FadeSlope:              0.02,
		PreChorusMaxSecs:       3,
		PreChorusMaxBars:       8,
		PreChorusFluxRise:      0.05,
		BridgeMinPosition:      0.4,
		BridgeMaxPosition:      0.85,
		BridgeMaxVerseSim:      0.8,
		Middle8Bars:            8,
		Middle8Tolerance:       1,
		BreakdownDrop:          0.5,
		ShortSectionSecs:       4,
		SectionKeyMinConf:      0.7,
	}
}
