// Package distribute schedules pipeline evaluations across workers and
// collects their results. Three strategies are available: sequential,
// a bounded local pool, and a coordinator/worker topology built on a
// work channel and a result channel. All of them record exactly one
// result per pipeline.
package distribute

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-sweep/internal/store"
	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

var ErrNoWork = errors.New("no pipelines to run")

// Runner evaluates one pipeline. Implementations must be safe for
// concurrent use; the evaluator is.
type Runner func(pipe *sweep.Pipeline) *evaluate.Result

// Results maps pipeline identifiers to their evaluation records.
type Results = store.Store[string, *evaluate.Result]

// Strategy runs every pipeline through the runner and returns the
// collected results. The context cancels outstanding work.
type Strategy interface {
	Run(ctx context.Context, pipelines []*sweep.Pipeline, run Runner) (*Results, error)
}

// Sequential evaluates pipelines one after the other on the calling
// goroutine.
func Sequential(log *zap.Logger) Strategy {
	return &sequential{log: logOrNop(log)}
}

type sequential struct {
	log *zap.Logger
}

func (s *sequential) Run(ctx context.Context, pipelines []*sweep.Pipeline, run Runner) (*Results, error) {
	if len(pipelines) == 0 {
		return nil, ErrNoWork
	}
	results := store.New[string, *evaluate.Result]()
	for _, pipe := range pipelines {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "sequential run interrupted")
		default:
		}
		results.Set(pipe.ID(), run(pipe))
	}
	return results, nil
}

// LocalPool evaluates pipelines concurrently with at most workers
// goroutines in flight.
func LocalPool(log *zap.Logger, workers int) Strategy {
	if workers < 1 {
		workers = 1
	}
	return &localPool{log: logOrNop(log), workers: workers}
}

type localPool struct {
	log     *zap.Logger
	workers int
}

func (p *localPool) Run(ctx context.Context, pipelines []*sweep.Pipeline, run Runner) (*Results, error) {
	if len(pipelines) == 0 {
		return nil, ErrNoWork
	}
	results := store.New[string, *evaluate.Result]()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, pipe := range pipelines {
		pipe := pipe
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results.Set(pipe.ID(), run(pipe))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "pool run interrupted")
	}
	return results, nil
}

// CoordinatorWorker builds the channel topology: a coordinator feeds a
// work channel, workers push onto a result channel, and closing the
// work channel is the exit signal. A worker panic is contained as a
// process-level failure of that unit; with requeue on, the unit is
// resubmitted once before being recorded as failed.
func CoordinatorWorker(log *zap.Logger, workers int, requeue bool) Strategy {
	if workers < 1 {
		workers = 1
	}
	return &coordinator{log: logOrNop(log), workers: workers, requeue: requeue}
}

type coordinator struct {
	log     *zap.Logger
	workers int
	requeue bool
}

type workUnit struct {
	pipe    *sweep.Pipeline
	attempt int
}

type workResult struct {
	unit     workUnit
	result   *evaluate.Result
	panicked bool
	panicMsg string
}

func (c *coordinator) Run(ctx context.Context, pipelines []*sweep.Pipeline, run Runner) (*Results, error) {
	if len(pipelines) == 0 {
		return nil, ErrNoWork
	}

	// Buffers sized so neither the coordinator nor a worker can block
	// forever on a send: at most one requeue per pipeline.
	work := make(chan workUnit, 2*len(pipelines))
	done := make(chan workResult, len(pipelines))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < c.workers; w++ {
		g.Go(func() error {
			for unit := range work {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				done <- attempt(unit, run)
			}
			return nil
		})
	}

	for _, pipe := range pipelines {
		work <- workUnit{pipe: pipe}
	}

	results := store.New[string, *evaluate.Result]()
	for recorded := 0; recorded < len(pipelines); {
		var wr workResult
		select {
		case wr = <-done:
		case <-gctx.Done():
			close(work)
			_ = g.Wait()
			return nil, errors.Wrap(gctx.Err(), "coordinator run interrupted")
		}

		if wr.panicked {
			c.log.Error("worker panicked on pipeline",
				zap.String("pipeline", wr.unit.pipe.ID()),
				zap.String("panic", wr.panicMsg),
				zap.Int("attempt", wr.unit.attempt))
			if c.requeue && wr.unit.attempt == 0 {
				work <- workUnit{pipe: wr.unit.pipe, attempt: 1}
				continue
			}
			wr.result = panicResult(wr.unit.pipe, wr.panicMsg)
		}
		results.Set(wr.unit.pipe.ID(), wr.result)
		recorded++
	}
	close(work)

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "coordinator workers failed")
	}
	return results, nil
}

// attempt runs one unit, converting a panic into a recorded failure
// instead of taking the worker down.
func attempt(unit workUnit, run Runner) (wr workResult) {
	wr.unit = unit
	defer func() {
		if r := recover(); r != nil {
			wr.panicked = true
			wr.panicMsg = fmt.Sprint(r)
		}
	}()
	wr.result = run(unit.pipe)
	return wr
}

// panicResult records a process-level failure: every stage is marked
// failed and the panic message lands on the first one.
func panicResult(pipe *sweep.Pipeline, msg string) *evaluate.Result {
	result := &evaluate.Result{
		PipelineID: pipe.ID(),
		Steps:      pipe.String(),
		Stages:     make([]evaluate.StageResult, len(pipe.Stages)),
	}
	for i, stage := range pipe.Stages {
		result.Stages[i] = evaluate.StageResult{Label: stage.Label, Kind: stage.Kind, Failed: true}
	}
	if len(result.Stages) > 0 {
		result.Stages[0].Err = "worker panic: " + msg
	}
	return result
}

// FromConfig picks the strategy matching the execution configuration.
func FromConfig(log *zap.Logger, cfg sweep.ExecutionConfig) (Strategy, error) {
	switch cfg.Mode {
	case sweep.ModeSequential, "":
		return Sequential(log), nil
	case sweep.ModePool:
		return LocalPool(log, cfg.Workers), nil
	case sweep.ModeCoordinator:
		return CoordinatorWorker(log, cfg.Workers, cfg.Requeue), nil
	}
	return nil, errors.Errorf("unknown execution mode %q", cfg.Mode)
}

func logOrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
