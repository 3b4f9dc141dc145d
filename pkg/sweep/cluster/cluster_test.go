package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/dataset"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

func TestKMeans(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(90, 3, 3, 5)
	km, err := NewKMeans(3, 100)
	require.NoError(t, err)
	require.NoError(t, km.Fit(ds.X))

	labels, err := km.Predict(ds.X)
	require.NoError(t, err)
	require.Len(t, labels, 90)
	for _, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}

	outcome := km.Outcome()
	require.NotNil(t, outcome.Centroid)
	rows, cols := outcome.Centroid.Centers.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.GreaterOrEqual(t, outcome.Centroid.Inertia, 0.0)
	assert.Nil(t, outcome.Hierarchical)
}

func TestKMeansValidation(t *testing.T) {
	t.Parallel()

	_, err := NewKMeans(1, 100)
	assert.Error(t, err)
}

func TestKMeansUnfitted(t *testing.T) {
	t.Parallel()

	km, err := NewKMeans(3, 100)
	require.NoError(t, err)
	_, err = km.Predict(mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestAffinityPropagation(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(40, 2, 2, 9)
	ap, err := NewAffinityPropagation(-50, 0.7, pairwise.Euclidean)
	require.NoError(t, err)
	require.NoError(t, ap.Fit(ds.X))

	labels, err := ap.Predict(ds.X)
	require.NoError(t, err)
	assert.Len(t, labels, 40)

	outcome := ap.Outcome()
	require.NotNil(t, outcome.Centroid)
	require.NotNil(t, outcome.Affinity)
	assert.NotEmpty(t, outcome.Affinity.Exemplars)
	rows, _ := outcome.Centroid.Centers.Dims()
	assert.Equal(t, len(outcome.Affinity.Exemplars), rows)
}

func TestAffinityPropagationValidation(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		damping  float64
		affinity string
	}{
		"damping too low":  {damping: 0.2, affinity: pairwise.Euclidean},
		"damping too high": {damping: 1.0, affinity: pairwise.Euclidean},
		"bad affinity":     {damping: 0.5, affinity: "cosine"},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewAffinityPropagation(-10, tc.damping, tc.affinity)
			assert.Error(t, err)
		})
	}
}

func TestMeanShift(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(60, 2, 2, 21)
	ms := NewMeanShift(0)
	require.NoError(t, ms.Fit(ds.X))

	labels, err := ms.Predict(ds.X)
	require.NoError(t, err)
	assert.Len(t, labels, 60)

	outcome := ms.Outcome()
	require.NotNil(t, outcome.Centroid)
	rows, _ := outcome.Centroid.Centers.Dims()
	assert.GreaterOrEqual(t, rows, 1)
}

func TestHierarchical(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(30, 2, 3, 13)
	h, err := NewHierarchical(3, pairwise.Euclidean, LinkageWard)
	require.NoError(t, err)
	require.NoError(t, h.Fit(ds.X))

	labels, err := h.Predict(ds.X)
	require.NoError(t, err)
	require.Len(t, labels, 30)

	distinct := map[int]bool{}
	for _, l := range labels {
		distinct[l] = true
	}
	assert.Len(t, distinct, 3)

	outcome := h.Outcome()
	require.NotNil(t, outcome.Hierarchical)
	// n samples agglomerate in n-1 merges.
	assert.Len(t, outcome.Hierarchical.Children, 29)
	assert.Len(t, outcome.Hierarchical.Distances, 29)
}

func TestHierarchicalWardNeedsEuclidean(t *testing.T) {
	t.Parallel()

	_, err := NewHierarchical(3, pairwise.Manhattan, LinkageWard)
	assert.ErrorIs(t, err, ErrWardAffinity)
}

func TestSpectral(t *testing.T) {
	t.Parallel()

	ds := dataset.Blobs(40, 2, 2, 17)
	sp, err := NewSpectral(2, 0.5)
	require.NoError(t, err)
	require.NoError(t, sp.Fit(ds.X))

	labels, err := sp.Predict(ds.X)
	require.NoError(t, err)
	assert.Len(t, labels, 40)

	outcome := sp.Outcome()
	require.NotNil(t, outcome.Affinity)
	rows, cols := outcome.Affinity.Matrix.Dims()
	assert.Equal(t, 40, rows)
	assert.Equal(t, 40, cols)
}
