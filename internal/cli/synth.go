package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

func newSynthCommand(a *app) *cobra.Command {
	p := features.DefaultSynthParams()
	var output string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic feature bundle from a block pattern",
		Long: `Synth writes a deterministic feature bundle whose structure follows a
letter pattern such as AABA: repeated letters produce identical blocks, so the
bundle has known boundaries and clusters. Useful for trying parameters and
for reproducing analysis issues without a DSP backend.`,
		Example: `  forma synth --pattern AABA -o song.json
  forma synth --pattern ABAB --block-seconds 20 --tempo 96 --bass --noise 0.05 -o song.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("an output path is required (--output)")
			}

			bundle, err := features.Synthesize(p)
			if err != nil {
				return err
			}
			if err := features.WriteFile(output, bundle); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			a.logger.Info("Synthetic bundle written", logging.Fields{
				"path":    output,
				"pattern": p.Pattern,
				"frames":  len(bundle.ChromaFrames),
				"format":  filepath.Ext(output),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Pattern, "pattern", p.Pattern, "block pattern, one letter per block")
	cmd.Flags().Float64Var(&p.BlockSeconds, "block-seconds", p.BlockSeconds, "length of each block in seconds")
	cmd.Flags().Float64Var(&p.TempoBPM, "tempo", p.TempoBPM, "tempo of the beat grid in BPM")
	cmd.Flags().Float64Var(&p.Hop, "hop", p.Hop, "frame hop in seconds")
	cmd.Flags().BoolVar(&p.WithMFCC, "mfcc", p.WithMFCC, "include MFCC frames")
	cmd.Flags().BoolVar(&p.WithVocal, "vocal", p.WithVocal, "include vocal presence frames")
	cmd.Flags().BoolVar(&p.WithBass, "bass", p.WithBass, "include bass notes")
	cmd.Flags().Float64Var(&p.Noise, "noise", p.Noise, "gaussian noise added to every feature")
	cmd.Flags().Int64Var(&p.Seed, "seed", p.Seed, "noise seed")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (.json, .yaml or .yml)")

	return cmd
}
