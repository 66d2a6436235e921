package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-forma/analysis"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

func newAnalyzeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <bundle>...",
		Short: "Analyze the structure and chords of feature bundles",
		Long: `Analyze reads one or more feature bundles (JSON or YAML) and prints the
structural map: sections with labels and clusters, boundaries, the chord
timeline, the key and any music-theory corrections.

Bundles are analyzed concurrently, bounded by --workers. With --output-dir
each result is written next to the others as <name>.forma.<format>;
otherwise results are printed to stdout in argument order.`,
		Example: `  forma analyze song.json
  forma analyze --format table --genre jazz song.yaml
  forma analyze --workers 4 --progress -o results/ *.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), a, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("genre", "", "genre profile used by the theory corrector")
	cmd.Flags().StringP("format", "f", "json", "output format (json, yaml, table)")
	cmd.Flags().IntP("workers", "w", 2, "number of bundles analyzed concurrently")
	cmd.Flags().Bool("progress", false, "show per-bundle progress bars on stderr")
	cmd.Flags().Bool("debug-novelty", false, "include the novelty curve in the output")
	cmd.Flags().Int("max-frames", analysis.DefaultConfig().MaxAnalysisFrames,
		"frame count above which analysis runs on a downsampled copy")
	cmd.Flags().StringP("output-dir", "o", "", "write one result file per bundle to this directory")

	return cmd
}

type analyzed struct {
	path   string
	result *analysis.Result
}

func runAnalyze(ctx context.Context, a *app, paths []string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := a.logger.WithFields(logging.Fields{
		"function": "runAnalyze",
	})

	genres, err := a.genres()
	if err != nil {
		return err
	}
	analyzer := analysis.New(a.config.Analysis, analysis.WithGenres(genres))
	extractor := features.NewFileExtractor()

	out := a.config.Output
	if out.Directory != "" {
		if err := os.MkdirAll(out.Directory, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var progress *mpb.Progress
	if out.Progress {
		progress = mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	}

	results := make([]analyzed, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(out.Workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			bundle, err := extractor.Extract(gctx, path)
			if err != nil {
				return err
			}

			job := analyzer.Start(gctx, bundle)
			track(job, progress, filepath.Base(path))

			res, err := job.Wait()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = analyzed{path: path, result: res}

			logger.Debug("Bundle analyzed", logging.Fields{
				"path":     path,
				"sections": len(res.Sections),
				"chords":   len(res.Chords),
				"key":      res.Key.Name(),
			})

			if out.Directory == "" {
				return nil
			}
			return writeResult(out.Directory, path, out.Format, res)
		})
	}

	err = g.Wait()
	if progress != nil {
		progress.Wait()
	}
	if err != nil {
		return err
	}

	if out.Directory != "" {
		logger.Info("Results written", logging.Fields{
			"directory": out.Directory,
			"count":     len(results),
		})
		return nil
	}

	for _, r := range results {
		if len(paths) > 1 && out.Format == "table" {
			fmt.Fprintf(stdout, "== %s ==\n", r.path)
		}
		if err := render(stdout, out.Format, r.result); err != nil {
			return err
		}
	}
	return nil
}

// track drains the job's progress events, feeding a bar when progress is on
func track(job *analysis.Job, progress *mpb.Progress, name string) {
	if progress == nil {
		for range job.Events() {
		}
		return
	}

	var mu sync.Mutex
	stage := "waiting"
	bar := progress.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string {
				mu.Lock()
				defer mu.Unlock()
				return stage
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), " done"),
		),
	)

	for ev := range job.Events() {
		mu.Lock()
		stage = string(ev.Stage)
		mu.Unlock()
		bar.SetCurrent(int64(ev.Percent))
	}
	if !bar.Completed() {
		bar.Abort(false)
	}
}

func writeResult(dir, path, format string, res *analysis.Result) error {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ext := format
	if format == "table" {
		ext = "txt"
	}
	target := filepath.Join(dir, name+".forma."+ext)

	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer file.Close()

	if err := render(file, format, res); err != nil {
		return err
	}
	return file.Close()
}
