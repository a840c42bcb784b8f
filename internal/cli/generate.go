package cli

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/db"
	"github.com/lucasnoah/variantfactory/internal/pipeline"
	"github.com/lucasnoah/variantfactory/internal/stage"
)

var (
	genOutput    string
	genWorkers   int
	genNoCache   bool
	genStrict    bool
	genHistory   bool
	genPreview   bool
	genScenarios []string
)

var generateCmd = &cobra.Command{
	Use:   "generate <file.vast|dir>",
	Short: "Generate concrete configs from a .vast file",
	Long: `Runs the variation stages of every scenario in the file and writes
scenario.configs, the files each config needs and a run.json summary to the
output directory. A failing scenario is reported and the others continue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Resolve(args[0])
		if err != nil {
			return err
		}
		f, err := config.LoadValid(path)
		if err != nil {
			return err
		}
		scenarios, err := selectScenarios(f, genScenarios)
		if err != nil {
			return err
		}

		outDir := genOutput
		if outDir == "" {
			outDir = filepath.Join(f.BaseDir(), "out")
		}
		outDir, err = filepath.Abs(outDir)
		if err != nil {
			return err
		}

		runner := newRunner(f, outDir)

		var history *db.DB
		var runID int64
		if genHistory {
			d, cleanup, err := openDB()
			if err != nil {
				return err
			}
			defer cleanup()
			if runID, err = d.StartRun(f.Path, outDir); err != nil {
				return err
			}
			history = d
			runner.OnStage = func(ev pipeline.StageEvent) {
				row := db.StageEvent{
					RunID: runID, Scenario: ev.Scenario, Stage: ev.Stage, StageIndex: ev.Index,
					Inputs: ev.Inputs, Outputs: ev.Outputs, Cached: ev.Cached, DurationMs: ev.Duration.Milliseconds(),
				}
				if ev.Err != nil {
					row.Error = ev.Err.Error()
				}
				if err := d.LogStageEvent(row); err != nil {
					logger.Warn("recording stage event failed", "error", err)
				}
			}
		}

		start := time.Now()
		res := runner.RunBatch(cmd.Context(), scenarios)
		store := pipeline.NewStore(outDir)
		summary, writeErr := store.Write(res, pipeline.RunInfo{
			SpecFile:     f.Path,
			ScenarioFile: f.ScenarioFilePath(),
			Metadata:     f.Metadata,
		})
		if summary == nil {
			return writeErr
		}
		if writeErr != nil {
			logger.Warn("some config files could not be copied", "error", writeErr)
		}

		if history != nil {
			recordHistory(history, runID, res, summary)
		}
		if genPreview {
			if err := writePreviews(store, res.Configs(), 0); err != nil {
				logger.Warn("writing previews failed", "error", err)
			}
		}

		out := cmd.OutOrStdout()
		for _, sr := range res.Scenarios {
			if sr.OK() {
				fmt.Fprintf(out, "  ok      %-24s %4d configs  [%s]\n", sr.Name, len(sr.Configs), sr.Identifier)
			} else {
				fmt.Fprintf(out, "  failed  %-24s %v\n", sr.Name, sr.Err)
			}
		}
		fmt.Fprintf(out, "Generated %d configs in %s (%s)\n", summary.Configs, outDir, time.Since(start).Round(time.Millisecond))

		if failed := res.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d scenarios failed", len(failed), len(res.Scenarios))
		}
		return writeErr
	},
}

// newRunner wires caches, workers and the stage environment for a .vast file.
func newRunner(f *config.File, outDir string) *pipeline.Runner {
	env := stage.Env{
		BaseDir:      f.BaseDir(),
		OutputDir:    outDir,
		ScenarioFile: f.ScenarioFilePath(),
		General:      f.General,
		Logger:       logger,
		Workers:      genWorkers,
	}
	r := &pipeline.Runner{Registry: stage.Builtin(), Env: env, Logger: logger}
	if !genNoCache {
		store := cache.New(f.BaseDir(), logger)
		if genStrict {
			store.Mode = cache.ModeHashRequired
		}
		r.Cache = store
		r.Env.Cache = store
	}
	return r
}

func selectScenarios(f *config.File, names []string) ([]config.Scenario, error) {
	if len(names) == 0 {
		return f.Configuration, nil
	}
	var out []config.Scenario
	for _, n := range names {
		sc, ok := f.Scenario(n)
		if !ok {
			return nil, fmt.Errorf("scenario %q not found in %s", n, f.Path)
		}
		out = append(out, sc)
	}
	return out, nil
}

func recordHistory(d *db.DB, runID int64, res *pipeline.BatchResult, summary *pipeline.RunSummary) {
	for _, sr := range res.Scenarios {
		row := db.ScenarioResult{
			RunID: runID, Name: sr.Name, Identifier: sr.Identifier, Status: "completed",
			Configs: len(sr.Configs), DurationMs: sr.Duration.Milliseconds(),
		}
		if !sr.OK() {
			row.Status, row.Reason = "failed", sr.Err.Error()
		}
		if err := d.LogScenarioResult(row); err != nil {
			logger.Warn("recording scenario result failed", "scenario", sr.Name, "error", err)
		}
	}
	if err := d.FinishRun(runID, summary.Status, summary.Configs); err != nil {
		logger.Warn("recording run failed", "error", err)
	}
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output directory (default <.vast dir>/out)")
	generateCmd.Flags().IntVarP(&genWorkers, "workers", "j", runtime.NumCPU(), "parallel workers for path and obstacle generation")
	generateCmd.Flags().BoolVar(&genNoCache, "no-cache", false, "ignore and do not write the .cache directory")
	generateCmd.Flags().BoolVar(&genStrict, "strict-cache", false, "fail cache lookups whose input files vanished instead of regenerating")
	generateCmd.Flags().BoolVar(&genHistory, "history", false, "record the run in the history database")
	generateCmd.Flags().BoolVar(&genPreview, "preview", false, "write an SVG preview per config that has a map")
	generateCmd.Flags().StringSliceVarP(&genScenarios, "scenario", "s", nil, "only generate the named scenarios")
}
