package sweep_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/dataset"
	"github.com/askiada/go-sweep/pkg/sweep/distribute"
	"github.com/askiada/go-sweep/pkg/sweep/drawer"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

func TestBatchEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := &sweep.Config{
		Preprocess: []sweep.StageConfig{
			{Name: "None", On: true},
			{Name: "Standardize", On: true},
		},
		DimRed: []sweep.StageConfig{
			{Name: "None", On: true},
			{Name: "PCA", On: true},
		},
		Cluster: []sweep.StageConfig{
			{Name: "KMeans", On: true, Params: map[string]interface{}{"n_clusters": 3}},
		},
	}
	cfg.ApplyDefaults()

	ds := dataset.Blobs(90, 4, 3, 99)

	parser := sweep.NewParser(zap.NewNop())
	imputing, preproc, dr, clustering := parser.ParseSteps(cfg)
	pipelines, err := sweep.Expand(zap.NewNop(), imputing, preproc, dr, clustering)
	require.NoError(t, err)
	require.Len(t, pipelines, 4)

	strategy := distribute.LocalPool(zap.NewNop(), 2)
	results, err := strategy.Run(context.Background(), pipelines, func(pipe *sweep.Pipeline) *evaluate.Result {
		return evaluate.Run(zap.NewNop(), pipe, ds.X)
	})
	require.NoError(t, err)
	require.Equal(t, 4, results.Len())

	for _, pipe := range pipelines {
		result, err := results.Get(pipe.ID())
		require.NoError(t, err)
		require.False(t, result.Failed(), "pipeline %s: %s", pipe.ID(), pipe.String())

		last := result.Stages[len(result.Stages)-1]
		require.Len(t, last.Labels, 90)
		require.NotNil(t, last.Outcome.Centroid)
		rows, cols := last.Outcome.Centroid.Centers.Dims()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 4, cols)
	}

	// Persist and reload the whole run.
	base := filepath.Join(t.TempDir(), "trial")
	path, err := distribute.SaveResults(base, results, true)
	require.NoError(t, err)
	records, err := distribute.LoadResults(path)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	// The plan drawing merges the four pipelines into a small DAG.
	plan, err := drawer.NewPlanDrawer(filepath.Join(t.TempDir(), "plan.dot"))
	require.NoError(t, err)
	for _, pipe := range pipelines {
		require.NoError(t, plan.AddPipeline(pipe))
	}
	require.NoError(t, plan.Annotate(pipelines, results.Snapshot()))
	require.NoError(t, plan.Draw())
}

func TestAutoClusterCountEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := &sweep.Config{
		Preprocess: []sweep.StageConfig{{Name: "Standardize", On: true}},
		DimRed:     []sweep.StageConfig{{Name: "None", On: true}},
		Cluster: []sweep.StageConfig{
			{Name: "KMeans", On: true, Params: map[string]interface{}{"n_clusters": "auto"}},
		},
	}
	cfg.ApplyDefaults()

	ds := dataset.Blobs(150, 4, 3, 7)

	parser := sweep.NewParser(zap.NewNop())
	imputing, preproc, dr, clustering := parser.ParseSteps(cfg)
	pipelines, err := sweep.Expand(zap.NewNop(), imputing, preproc, dr, clustering)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)

	result := evaluate.Run(zap.NewNop(), pipelines[0], ds.X)
	require.False(t, result.Failed())

	last := result.Stages[len(result.Stages)-1]
	require.NotNil(t, last.Outcome.Centroid)
	rows, _ := last.Outcome.Centroid.Centers.Dims()

	// The cross-validated count lands inside the heuristic grid range.
	assert.GreaterOrEqual(t, rows, 2)
	assert.LessOrEqual(t, rows, 14)

	chosen, ok := last.Params["n_clusters"]
	require.True(t, ok)
	assert.Equal(t, rows, chosen)
	assert.Contains(t, last.Params, "best_score")
}
