// Command sweep expands a YAML run configuration into candidate
// pipelines, evaluates them and persists the results into a fresh run
// folder.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/go-sweep/internal/runlog"
	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/dataset"
	"github.com/askiada/go-sweep/pkg/sweep/distribute"
	"github.com/askiada/go-sweep/pkg/sweep/drawer"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

func main() {
	configPath := flag.String("c", "sweep.yaml", "run configuration file")
	verbose := flag.Bool("v", false, "log debug output to the console")
	flag.Parse()

	if err := run(*configPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %+v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, verbose bool) error {
	cfg, err := sweep.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Verbose = true
	}

	runDir := filepath.Join(cfg.OutputRoot, cfg.ExpTag+"_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create run folder %s", runDir)
	}

	log, closeLog, err := runlog.New(filepath.Join(runDir, cfg.ExpTag+".log"), cfg.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("starting batch run",
		zap.String("tag", cfg.ExpTag),
		zap.String("folder", runDir),
		zap.String("mode", cfg.Execution.Mode),
		zap.Int("workers", cfg.Execution.Workers),
	)

	if err := copyFile(configPath, filepath.Join(runDir, filepath.Base(configPath))); err != nil {
		log.Warn("unable to copy configuration into the run folder", zap.Error(err))
	}

	ds, err := loadData(log, cfg)
	if err != nil {
		return err
	}
	log.Info("data loaded", zap.Int("samples", ds.Samples()), zap.Int("features", len(ds.Features)))

	parser := sweep.NewParser(log)
	imputing, preproc, dr, clustering := parser.ParseSteps(cfg)
	pipelines, err := sweep.Expand(log, imputing, preproc, dr, clustering)
	if err != nil {
		return err
	}

	plan, err := drawer.NewPlanDrawer(filepath.Join(runDir, "plan.dot"))
	if err != nil {
		return err
	}
	for _, pipe := range pipelines {
		if err := plan.AddPipeline(pipe); err != nil {
			return err
		}
	}

	strategy, err := distribute.FromConfig(log, cfg.Execution)
	if err != nil {
		return err
	}

	measure := distribute.NewMeasure()
	runner := func(pipe *sweep.Pipeline) *evaluate.Result {
		result := evaluate.Run(log, pipe, ds.X)
		measure.Add(result.PipelineID, result.Elapsed, result.Failed())
		return result
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := strategy.Run(ctx, pipelines, runner)
	if err != nil {
		return err
	}
	measure.Summary(log)

	base := filepath.Join(runDir, cfg.ExpTag)
	resultsPath, err := distribute.SaveResults(base, results, cfg.UseCompression)
	if err != nil {
		return err
	}
	dataPath, err := distribute.SaveData(base+"__data", ds, cfg.UseCompression)
	if err != nil {
		return err
	}
	log.Info("results persisted", zap.String("results", resultsPath), zap.String("data", dataPath))

	if err := plan.Annotate(pipelines, results.Snapshot()); err != nil {
		log.Warn("unable to annotate plan drawing", zap.Error(err))
	}
	if err := plan.Draw(); err != nil {
		log.Warn("unable to draw plan", zap.Error(err))
	}

	return nil
}

// loadData reads the configured CSV file, or falls back to a
// deterministic synthetic dataset so a bare configuration still runs.
func loadData(log *zap.Logger, cfg *sweep.Config) (*dataset.Dataset, error) {
	if cfg.DataFile != "" {
		return dataset.FromCSV(cfg.DataFile, cfg.LabelCol())
	}
	log.Warn("no data file configured; generating gaussian blobs")
	return dataset.Blobs(200, 5, 3, 42), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "unable to copy %s", src)
	}
	return nil
}
