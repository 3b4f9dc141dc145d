package distribute

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

func fakePipelines(n int) []*sweep.Pipeline {
	pipelines := make([]*sweep.Pipeline, n)
	for i := range pipelines {
		pipelines[i] = &sweep.Pipeline{
			Index: i,
			Stages: []sweep.Stage{{
				Label:      fmt.Sprintf("step%d", i+1),
				Kind:       sweep.StageCluster,
				Capability: capability.NewIdentity(),
			}},
		}
	}
	return pipelines
}

func fakeRunner() (Runner, *sync.Map) {
	var calls sync.Map
	return func(pipe *sweep.Pipeline) *evaluate.Result {
		count, _ := calls.LoadOrStore(pipe.ID(), new(int))
		*count.(*int)++
		return &evaluate.Result{PipelineID: pipe.ID(), Steps: pipe.String()}
	}, &calls
}

func TestStrategiesRunEveryPipelineOnce(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		strategy  Strategy
		pipelines int
	}{
		"sequential":             {strategy: Sequential(nil), pipelines: 10},
		"pool single worker":     {strategy: LocalPool(nil, 1), pipelines: 10},
		"pool few workers":       {strategy: LocalPool(nil, 3), pipelines: 10},
		"pool excess workers":    {strategy: LocalPool(nil, 32), pipelines: 10},
		"coordinator one worker": {strategy: CoordinatorWorker(nil, 1, false), pipelines: 10},
		"coordinator balanced":   {strategy: CoordinatorWorker(nil, 4, false), pipelines: 10},
		"coordinator oversized":  {strategy: CoordinatorWorker(nil, 32, true), pipelines: 10},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pipelines := fakePipelines(tc.pipelines)
			runner, calls := fakeRunner()

			results, err := tc.strategy.Run(context.Background(), pipelines, runner)
			require.NoError(t, err)
			require.Equal(t, tc.pipelines, results.Len())

			for _, pipe := range pipelines {
				result, err := results.Get(pipe.ID())
				require.NoError(t, err)
				assert.Equal(t, pipe.ID(), result.PipelineID)

				count, ok := calls.Load(pipe.ID())
				require.True(t, ok)
				assert.Equal(t, 1, *count.(*int))
			}
		})
	}
}

func TestStrategiesRejectEmptyWork(t *testing.T) {
	t.Parallel()

	for name, strategy := range map[string]Strategy{
		"sequential":  Sequential(nil),
		"pool":        LocalPool(nil, 2),
		"coordinator": CoordinatorWorker(nil, 2, false),
	} {
		strategy := strategy
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runner, _ := fakeRunner()
			_, err := strategy.Run(context.Background(), nil, runner)
			assert.ErrorIs(t, err, ErrNoWork)
		})
	}
}

func TestSequentialStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, _ := fakeRunner()
	_, err := Sequential(nil).Run(ctx, fakePipelines(3), runner)
	assert.Error(t, err)
}

func TestCoordinatorContainsPanic(t *testing.T) {
	t.Parallel()

	pipelines := fakePipelines(5)
	runner := func(pipe *sweep.Pipeline) *evaluate.Result {
		if pipe.ID() == "pipe3" {
			panic("index out of range")
		}
		return &evaluate.Result{PipelineID: pipe.ID(), Steps: pipe.String()}
	}

	results, err := CoordinatorWorker(nil, 2, false).Run(context.Background(), pipelines, runner)
	require.NoError(t, err)
	require.Equal(t, 5, results.Len())

	crashed, err := results.Get("pipe3")
	require.NoError(t, err)
	require.Len(t, crashed.Stages, 1)
	assert.True(t, crashed.Stages[0].Failed)
	assert.Contains(t, crashed.Stages[0].Err, "worker panic")
	assert.Contains(t, crashed.Stages[0].Err, "index out of range")
}

func TestCoordinatorRequeuesOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := map[string]int{}

	pipelines := fakePipelines(4)
	runner := func(pipe *sweep.Pipeline) *evaluate.Result {
		mu.Lock()
		attempts[pipe.ID()]++
		n := attempts[pipe.ID()]
		mu.Unlock()
		// pipe2 crashes on its first attempt only.
		if pipe.ID() == "pipe2" && n == 1 {
			panic("transient crash")
		}
		return &evaluate.Result{PipelineID: pipe.ID(), Steps: pipe.String()}
	}

	results, err := CoordinatorWorker(nil, 2, true).Run(context.Background(), pipelines, runner)
	require.NoError(t, err)
	require.Equal(t, 4, results.Len())

	recovered, err := results.Get("pipe2")
	require.NoError(t, err)
	assert.False(t, recovered.Failed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts["pipe2"])
	assert.Equal(t, 1, attempts["pipe1"])
}

func TestCoordinatorPersistentPanicRecordsFailure(t *testing.T) {
	t.Parallel()

	pipelines := fakePipelines(2)
	runner := func(pipe *sweep.Pipeline) *evaluate.Result {
		if pipe.ID() == "pipe1" {
			panic("hard crash")
		}
		return &evaluate.Result{PipelineID: pipe.ID(), Steps: pipe.String()}
	}

	results, err := CoordinatorWorker(nil, 2, true).Run(context.Background(), pipelines, runner)
	require.NoError(t, err)

	crashed, err := results.Get("pipe1")
	require.NoError(t, err)
	assert.True(t, crashed.Failed())
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mode    string
		wantErr bool
	}{
		"sequential":  {mode: sweep.ModeSequential},
		"pool":        {mode: sweep.ModePool},
		"coordinator": {mode: sweep.ModeCoordinator},
		"blank":       {mode: ""},
		"unknown":     {mode: "cluster-of-machines", wantErr: true},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			strategy, err := FromConfig(nil, sweep.ExecutionConfig{Mode: tc.mode, Workers: 2})
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, strategy)
		})
	}
}
