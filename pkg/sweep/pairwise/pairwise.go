// Package pairwise computes sample-to-sample distance matrices used by
// the clustering and manifold-learning capabilities.
package pairwise

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Supported metrics.
const (
	Euclidean   = "euclidean"
	Manhattan   = "manhattan"
	Precomputed = "precomputed"
)

var ErrUnknownMetric = errors.New("unknown distance metric")

// Distances returns the n x n distance matrix of the rows of x under
// the given metric. With the precomputed metric x already is the
// distance matrix and is returned as is.
func Distances(x *mat.Dense, metric string) (*mat.Dense, error) {
	switch metric {
	case Precomputed:
		return x, nil
	case Euclidean, Manhattan:
	default:
		return nil, errors.Wrap(ErrUnknownMetric, metric)
	}

	n, _ := x.Dims()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var dist float64
			switch metric {
			case Euclidean:
				dist = math.Sqrt(SquaredRowDistance(x, i, j))
			case Manhattan:
				for k, v := range x.RawRowView(i) {
					dist += math.Abs(v - x.At(j, k))
				}
			}
			d.Set(i, j, dist)
			d.Set(j, i, dist)
		}
	}
	return d, nil
}

// SquaredEuclidean returns the matrix of squared euclidean distances.
func SquaredEuclidean(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := SquaredRowDistance(x, i, j)
			d.Set(i, j, v)
			d.Set(j, i, v)
		}
	}
	return d
}

// SquaredRowDistance returns the squared euclidean distance between
// rows i and j of x.
func SquaredRowDistance(x *mat.Dense, i, j int) float64 {
	var d float64
	for k, v := range x.RawRowView(i) {
		diff := v - x.At(j, k)
		d += diff * diff
	}
	return d
}

// SquaredDistance returns the squared euclidean distance between two
// vectors of equal length.
func SquaredDistance(a, b []float64) float64 {
	var d float64
	for k, v := range a {
		diff := v - b[k]
		d += diff * diff
	}
	return d
}
