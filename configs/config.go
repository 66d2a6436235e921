package configs

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-forma/analysis"
)

// EnvPrefix prefixes every environment variable read by the configuration
const EnvPrefix = "FORMA"

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Optional genre profile document layered over the built-in profiles
	GenresFile string `mapstructure:"genres_file" yaml:"genres_file"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Pipeline configuration
	Analysis analysis.Config `mapstructure:"analysis" yaml:"analysis"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Format    string `mapstructure:"format" yaml:"format"`
	Directory string `mapstructure:"directory" yaml:"directory"`
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	Progress  bool   `mapstructure:"progress" yaml:"progress"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Output: OutputConfig{
			Format:   "json",
			Workers:  2,
			Progress: false,
		},
		Analysis: analysis.DefaultConfig(),
	}
}

// Load decodes the configuration held by v on top of the defaults
func Load(v *viper.Viper) (*Config, error) {
	if err := SetDefaults(v); err != nil {
		return nil, err
	}

	config := Default()
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return &config, nil
}

// NewViper returns a viper instance reading FORMA_* environment variables
// and, when path is set, the given config file
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Validate validates the configuration
func Validate(config *Config) error {
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}

	switch config.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json")
	}

	switch config.Output.Format {
	case "json", "yaml", "table":
	default:
		return fmt.Errorf("output format must be json, yaml or table")
	}

	if config.Output.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	return ValidateAnalysis(config.Analysis)
}

// ValidateAnalysis range-checks the pipeline parameters
func ValidateAnalysis(cfg analysis.Config) error {
	if cfg.MaxAnalysisFrames < 0 {
		return fmt.Errorf("max analysis frames cannot be negative")
	}
	if cfg.MinKeyConfidence < 0 || cfg.MinKeyConfidence > 1 {
		return fmt.Errorf("minimum key confidence must be between 0 and 1")
	}

	sim := cfg.Similarity
	if sim.ChromaWeight < 0 || sim.MFCCWeight < 0 || sim.RMSWeight < 0 || sim.FluxWeight < 0 {
		return fmt.Errorf("similarity weights cannot be negative")
	}
	if sim.ChromaWeight+sim.MFCCWeight+sim.RMSWeight+sim.FluxWeight <= 0 {
		return fmt.Errorf("at least one similarity weight must be positive")
	}

	nov := cfg.Novelty
	if nov.PhraseBeats <= 0 || nov.SectionBeats <= 0 || nov.MovementBeats <= 0 {
		return fmt.Errorf("novelty kernel sizes must be positive")
	}
	if nov.MinDistanceSeconds > nov.MaxDistanceSeconds {
		return fmt.Errorf("minimum boundary distance exceeds the maximum")
	}

	if cfg.Cluster.Threshold < 0 || cfg.Cluster.Threshold > 1 {
		return fmt.Errorf("cluster threshold must be between 0 and 1")
	}
	if cfg.Cluster.Stride <= 0 {
		return fmt.Errorf("cluster stride must be positive")
	}

	chords := cfg.Chords
	if chords.Temperature <= 0 {
		return fmt.Errorf("chord softmax temperature must be positive")
	}
	if chords.Transitions.Stay <= 0 || chords.Transitions.Stay >= 1 {
		return fmt.Errorf("chord stay probability must be between 0 and 1 exclusive")
	}
	if chords.Transitions.FifthShare < 0 || chords.Transitions.FifthShare > 1 {
		return fmt.Errorf("fifth share must be between 0 and 1")
	}
	if chords.BeatSync.WindowSigma <= 0 {
		return fmt.Errorf("beat sync sigma must be positive")
	}

	corr := cfg.Corrector
	if corr.VoiceLeadingMinGain < 0 || corr.VoiceLeadingMinGain > 1 {
		return fmt.Errorf("voice leading gain must be between 0 and 1")
	}
	if corr.MergeMinSections < 1 {
		return fmt.Errorf("merge minimum section count must be at least 1")
	}

	return nil
}
