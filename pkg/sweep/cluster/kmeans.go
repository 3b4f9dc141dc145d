// Package cluster holds the fit/predict capabilities of the clustering
// stage, the silhouette objective and the cross-validated selector that
// auto-tunes the cluster count.
package cluster

import (
	"github.com/mpraski/clusters"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

var ErrNotFitted = errors.New("clusterer must be fitted first")

// KMeans clusters with Lloyd's algorithm. The iteration work is done by
// the clusters library; centres and inertia are derived from the final
// assignment because the library does not expose them.
type KMeans struct {
	nClusters  int
	iterations int

	model   clusters.HardClusterer
	labels  []int
	outcome capability.Outcome
}

// NewKMeans returns a k-means clusterer. maxIter <= 0 defaults to 1000.
func NewKMeans(nClusters, maxIter int) (*KMeans, error) {
	if nClusters < 2 {
		return nil, errors.Errorf("n_clusters must be at least 2, got %d", nClusters)
	}
	if maxIter <= 0 {
		maxIter = 1000
	}
	return &KMeans{nClusters: nClusters, iterations: maxIter}, nil
}

func (k *KMeans) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	if k.nClusters > n {
		return errors.Errorf("cannot fit %d clusters on %d samples", k.nClusters, n)
	}

	model, err := clusters.KMeans(k.iterations, k.nClusters, clusters.EuclideanDistance)
	if err != nil {
		return errors.Wrap(err, "unable to create k-means model")
	}
	if err := model.Learn(matrixRows(x)); err != nil {
		return errors.Wrap(err, "unable to learn clusters")
	}
	k.model = model

	// The library numbers clusters from 1.
	k.labels = make([]int, n)
	for i, guess := range model.Guesses() {
		k.labels[i] = guess - 1
	}

	centers, inertia := centroids(x, k.labels, k.nClusters, d)
	k.outcome = capability.Outcome{Centroid: &capability.CentroidOutcome{Centers: centers, Inertia: inertia}}
	return nil
}

func (k *KMeans) Predict(x *mat.Dense) ([]int, error) {
	if k.model == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = k.model.Predict(x.RawRowView(i)) - 1
	}
	return labels, nil
}

func (k *KMeans) Outcome() capability.Outcome { return k.outcome }

func (k *KMeans) Params() map[string]interface{} {
	return map[string]interface{}{"n_clusters": k.nClusters, "max_iter": k.iterations}
}

// centroids computes per-cluster means and the within-cluster sum of
// squared distances for a labelling of x.
func centroids(x *mat.Dense, labels []int, k, d int) (*mat.Dense, float64) {
	centers := mat.NewDense(k, d, nil)
	counts := make([]int, k)
	for i, label := range labels {
		counts[label]++
		for j := 0; j < d; j++ {
			centers.Set(label, j, centers.At(label, j)+x.At(i, j))
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		for j := 0; j < d; j++ {
			centers.Set(c, j, centers.At(c, j)/float64(counts[c]))
		}
	}
	var inertia float64
	for i, label := range labels {
		inertia += pairwise.SquaredDistance(x.RawRowView(i), centers.RawRowView(label))
	}
	return centers, inertia
}

func matrixRows(x *mat.Dense) [][]float64 {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = x.RawRowView(i)
	}
	return rows
}

// nearestRow returns the index of the row of m closest to v.
func nearestRow(m *mat.Dense, v []float64) int {
	n, _ := m.Dims()
	best, bestDist := 0, pairwise.SquaredDistance(m.RawRowView(0), v)
	for i := 1; i < n; i++ {
		if d := pairwise.SquaredDistance(m.RawRowView(i), v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

var _ capability.Clusterer = (*KMeans)(nil)
