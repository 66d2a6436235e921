package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-forma/configs"
	"github.com/RyanBlaney/sonido-forma/logging"
	"github.com/RyanBlaney/sonido-forma/theory"
)

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"verbose":       "verbose",
	"log-level":     "log_level",
	"log-format":    "log_format",
	"genres-file":   "genres_file",
	"format":        "output.format",
	"output-dir":    "output.directory",
	"workers":       "output.workers",
	"progress":      "output.progress",
	"genre":         "analysis.genre",
	"debug-novelty": "analysis.include_novelty",
	"max-frames":    "analysis.max_analysis_frames",
}

// app is the state shared by the commands of one invocation
type app struct {
	configFile string
	viper      *viper.Viper
	config     *configs.Config
	logger     logging.Logger
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// NewRootCommand builds the forma command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "forma",
		Short: "Musical structure and chord analysis",
		Long: `forma reads per-frame feature bundles (chroma, mfcc, loudness, beats)
produced by a DSP backend and infers the structure of a track:

- section boundaries from multi-scale novelty on a self-similarity matrix
- repeated-section clusters and semantic labels (verse, chorus, bridge...)
- a beat-level chord timeline decoded with a Viterbi smoother
- music-theory corrections driven by genre profiles`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "",
		"config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"verbose output (debug logging)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text",
		"log format (text, json)")
	rootCmd.PersistentFlags().String("genres-file", "",
		"YAML genre profiles layered over the built-in ones")

	rootCmd.AddCommand(
		newAnalyzeCommand(a),
		newSynthCommand(a),
		newGenresCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// initialize loads the layered configuration once flags are parsed
func (a *app) initialize(cmd *cobra.Command) error {
	v, err := configs.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	config, err := configs.Load(v)
	if err != nil {
		return err
	}
	if err := configs.Validate(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.viper = v
	a.config = config
	if err := a.setupLogging(); err != nil {
		return err
	}

	if a.configFile != "" {
		a.logger.Debug("Using config file", logging.Fields{
			"path": v.ConfigFileUsed(),
		})
	}
	return nil
}

// bindFlags binds each known cobra flag to its configuration key
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

func (a *app) setupLogging() error {
	levelName := a.config.LogLevel
	if a.config.Verbose {
		levelName = "debug"
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	if a.config.LogFormat == "json" {
		zl, err := logging.NewZapLogger(level)
		if err != nil {
			return fmt.Errorf("failed to build json logger: %w", err)
		}
		logging.SetGlobalLogger(zl)
	} else {
		dl := logging.NewDefaultLogger()
		dl.SetLevel(level)
		logging.SetGlobalLogger(dl)
	}

	a.logger = logging.WithFields(logging.Fields{
		"component": "cli",
	})
	return nil
}

// genres returns the genre profiles, including the configured genre file
func (a *app) genres() (*theory.GenreLibrary, error) {
	if a.config.GenresFile == "" {
		return theory.DefaultGenres(), nil
	}
	return theory.LoadGenres(a.config.GenresFile)
}
