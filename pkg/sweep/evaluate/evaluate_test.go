package evaluate

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/cluster"
	"github.com/askiada/go-sweep/pkg/sweep/dataset"
	"github.com/askiada/go-sweep/pkg/sweep/dimred"
	"github.com/askiada/go-sweep/pkg/sweep/preprocess"
)

type brokenStage struct{}

func (*brokenStage) Fit(*mat.Dense) error { return errors.New("numerical meltdown") }

func (*brokenStage) Transform(*mat.Dense) (*mat.Dense, error) {
	return nil, errors.New("unreachable")
}

func (*brokenStage) Params() map[string]interface{} { return nil }

func stage(label string, kind sweep.StageKind, factory func() (capability.Capability, error)) sweep.Stage {
	cap, err := factory()
	if err != nil {
		panic(err)
	}
	return sweep.Stage{Label: label, Kind: kind, Capability: cap, New: factory}
}

func TestRunFullChain(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(90, 4, 3, 19)
	pipe := &sweep.Pipeline{
		Index: 1,
		Stages: []sweep.Stage{
			stage("Standardize", sweep.StagePreprocess, func() (capability.Capability, error) {
				return preprocess.NewStandardize(), nil
			}),
			stage("PCA", sweep.StageDimRed, func() (capability.Capability, error) {
				return dimred.NewPCA(), nil
			}),
			stage("KMeans", sweep.StageCluster, func() (capability.Capability, error) {
				return cluster.NewKMeans(3, 100)
			}),
		},
	}

	result := Run(nil, pipe, ds.X)
	require.NotNil(t, result)
	assert.Equal(t, "pipe1", result.PipelineID)
	assert.Equal(t, "Standardize -> PCA -> KMeans", result.Steps)
	assert.False(t, result.Failed())
	assert.Positive(t, result.Elapsed)
	require.Len(t, result.Stages, 3)

	for _, sr := range result.Stages {
		assert.False(t, sr.Failed)
		assert.NotNil(t, sr.Output)
		assert.NotNil(t, sr.Model)
	}

	last := result.Stages[2]
	require.Len(t, last.Labels, 90)
	require.NotNil(t, last.Outcome.Centroid)
	rows, _ := last.Outcome.Centroid.Centers.Dims()
	assert.Equal(t, 3, rows)

	// Reduction and clustering stages carry a planar twin, the scaler
	// does not.
	assert.Nil(t, result.Stages[0].Model2D)
	assert.NotNil(t, result.Stages[1].Model2D)
	assert.NotNil(t, result.Stages[2].Model2D)
}

func TestRunContainsStageFailure(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(30, 3, 2, 23)
	pipe := &sweep.Pipeline{
		Index: 7,
		Stages: []sweep.Stage{
			stage("Standardize", sweep.StagePreprocess, func() (capability.Capability, error) {
				return preprocess.NewStandardize(), nil
			}),
			stage("Broken", sweep.StageDimRed, func() (capability.Capability, error) {
				return &brokenStage{}, nil
			}),
			stage("KMeans", sweep.StageCluster, func() (capability.Capability, error) {
				return cluster.NewKMeans(2, 100)
			}),
		},
	}

	result := Run(nil, pipe, ds.X)
	require.Len(t, result.Stages, 3)
	assert.True(t, result.Failed())

	assert.False(t, result.Stages[0].Failed)

	broken := result.Stages[1]
	assert.True(t, broken.Failed)
	assert.Contains(t, broken.Err, "numerical meltdown")
	assert.Nil(t, broken.Output)

	// Downstream stages are marked failed without running.
	downstream := result.Stages[2]
	assert.True(t, downstream.Failed)
	assert.Empty(t, downstream.Err)
	assert.Nil(t, downstream.Model)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(30, 3, 2, 29)
	original := mat.DenseCopyOf(ds.X)

	pipe := &sweep.Pipeline{
		Index: 2,
		Stages: []sweep.Stage{
			stage("Standardize", sweep.StagePreprocess, func() (capability.Capability, error) {
				return preprocess.NewStandardize(), nil
			}),
			stage("KMeans", sweep.StageCluster, func() (capability.Capability, error) {
				return cluster.NewKMeans(2, 100)
			}),
		},
	}

	_ = Run(nil, pipe, ds.X)
	assert.True(t, mat.Equal(original, ds.X))
}

func TestRunNarrowInputSkipsTwin(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		x.Set(i, 0, float64(i%2*10))
	}
	pipe := &sweep.Pipeline{
		Index: 3,
		Stages: []sweep.Stage{
			stage("KMeans", sweep.StageCluster, func() (capability.Capability, error) {
				return cluster.NewKMeans(2, 100)
			}),
		},
	}

	result := Run(nil, pipe, x)
	require.Len(t, result.Stages, 1)
	assert.False(t, result.Stages[0].Failed)
	assert.Nil(t, result.Stages[0].Model2D)
}
