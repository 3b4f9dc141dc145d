// Package evaluate runs a single candidate pipeline against a data
// matrix and records the per-stage results. Evaluation is pure with
// respect to its inputs: the incoming matrix is never modified and no
// state leaks between pipelines, so callers are free to evaluate many
// pipelines concurrently.
package evaluate

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/capability"
)

var ErrNotTransformer = errors.New("stage capability cannot transform")

var ErrNotClusterer = errors.New("stage capability cannot predict")

// StageResult is the recorded outcome of one pipeline stage.
type StageResult struct {
	Label  string
	Kind   sweep.StageKind
	Params map[string]interface{}

	// Input is the matrix the stage consumed. Output is the matrix handed
	// to the next stage; nil when the stage failed.
	Input  *mat.Dense
	Output *mat.Dense
	// Labels is the cluster assignment, set on the clustering stage only.
	Labels []int
	// Outcome is the family-specific clustering result.
	Outcome capability.Outcome

	// Model is the fitted capability. Model2D is a twin of the same
	// capability fitted on the first two columns of the stage input, kept
	// for two-dimensional plotting; nil when the input is too narrow.
	Model   capability.Capability
	Model2D capability.Capability

	// Failed marks the stage as failed, either in its own right or
	// because an upstream stage already failed.
	Failed bool
	// Err is the failure message of the stage itself; empty for a
	// propagated failure.
	Err string
}

// Result is the complete evaluation record of one pipeline.
type Result struct {
	PipelineID string
	Steps      string
	Stages     []StageResult
	Elapsed    time.Duration
}

// Failed reports whether any stage of the pipeline failed.
func (r *Result) Failed() bool {
	for i := range r.Stages {
		if r.Stages[i].Failed {
			return true
		}
	}
	return false
}

// Run evaluates every stage of the pipeline in order. A stage failure
// is contained: it is recorded on the stage, the remaining stages are
// marked failed without executing, and the pipeline still yields a
// result. A nil logger is replaced with a no-op one.
func Run(log *zap.Logger, pipe *sweep.Pipeline, x *mat.Dense) *Result {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()
	result := &Result{
		PipelineID: pipe.ID(),
		Steps:      pipe.String(),
		Stages:     make([]StageResult, len(pipe.Stages)),
	}

	current := x
	failed := false
	for i, stage := range pipe.Stages {
		sr := &result.Stages[i]
		sr.Label = stage.Label
		sr.Kind = stage.Kind

		if failed {
			sr.Failed = true
			continue
		}

		err := runStage(stage, current, sr)
		if err != nil {
			log.Warn("pipeline stage failed",
				zap.String("pipeline", result.PipelineID),
				zap.String("stage", stage.Label),
				zap.Error(err))
			sr.Failed = true
			sr.Err = err.Error()
			failed = true
			continue
		}
		current = sr.Output
	}

	result.Elapsed = time.Since(start)
	log.Debug("pipeline evaluated",
		zap.String("pipeline", result.PipelineID),
		zap.Bool("failed", failed),
		zap.Duration("elapsed", result.Elapsed))
	return result
}

func runStage(stage sweep.Stage, input *mat.Dense, sr *StageResult) error {
	sr.Input = input
	if err := stage.Capability.Fit(input); err != nil {
		return errors.Wrap(err, "fit")
	}
	sr.Model = stage.Capability
	sr.Params = stage.Capability.Params()

	switch stage.Kind {
	case sweep.StageCluster:
		clusterer, ok := stage.Capability.(capability.Clusterer)
		if !ok {
			return ErrNotClusterer
		}
		labels, err := clusterer.Predict(input)
		if err != nil {
			return errors.Wrap(err, "predict")
		}
		sr.Labels = labels
		sr.Outcome = clusterer.Outcome()
		sr.Output = input
	default:
		transformer, ok := stage.Capability.(capability.Transformer)
		if !ok {
			return ErrNotTransformer
		}
		out, err := transformer.Transform(input)
		if err != nil {
			return errors.Wrap(err, "transform")
		}
		sr.Output = out
	}

	fitTwin(stage, input, sr)
	return nil
}

// fitTwin mints a second instance of a reduction or clustering stage
// and fits it on the first two columns of the stage input, so the run
// can be plotted in the plane later. A twin failure is not a stage
// failure.
func fitTwin(stage sweep.Stage, input *mat.Dense, sr *StageResult) {
	if stage.Kind != sweep.StageDimRed && stage.Kind != sweep.StageCluster {
		return
	}
	n, d := input.Dims()
	if d < 2 || stage.New == nil {
		return
	}
	twin, err := stage.New()
	if err != nil {
		return
	}
	plane := mat.DenseCopyOf(input.Slice(0, n, 0, 2))
	if err := twin.Fit(plane); err != nil {
		return
	}
	sr.Model2D = twin
}
