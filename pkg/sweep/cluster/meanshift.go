package cluster

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// MeanShift clusters by shifting every sample to the mean of its
// flat-kernel neighbourhood until the modes stabilise, then merging
// modes closer than the bandwidth.
type MeanShift struct {
	bandwidth float64

	centers *mat.Dense
	labels  []int
	outcome capability.Outcome
}

// NewMeanShift returns a mean-shift clusterer. bandwidth <= 0 estimates
// one from the data at fit time.
func NewMeanShift(bandwidth float64) *MeanShift {
	return &MeanShift{bandwidth: bandwidth}
}

func (ms *MeanShift) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	bandwidth := ms.bandwidth
	if bandwidth <= 0 {
		bandwidth = estimateBandwidth(x)
	}
	if bandwidth <= 0 {
		return errors.New("bandwidth estimation failed: all samples identical")
	}

	const (
		maxShift = 300
		tolRatio = 1e-3
	)
	modes := mat.DenseCopyOf(x)
	point := make([]float64, d)
	for i := 0; i < n; i++ {
		copy(point, modes.RawRowView(i))
		for iter := 0; iter < maxShift; iter++ {
			var count int
			next := make([]float64, d)
			for j := 0; j < n; j++ {
				if pairwise.SquaredDistance(point, x.RawRowView(j)) <= bandwidth*bandwidth {
					for c := 0; c < d; c++ {
						next[c] += x.At(j, c)
					}
					count++
				}
			}
			for c := range next {
				next[c] /= float64(count)
			}
			moved := math.Sqrt(pairwise.SquaredDistance(point, next))
			copy(point, next)
			if moved < tolRatio*bandwidth {
				break
			}
		}
		modes.SetRow(i, point)
	}

	// Merge modes within one bandwidth of an already kept one.
	var kept [][]float64
	assignment := make([]int, n)
	for i := 0; i < n; i++ {
		row := modes.RawRowView(i)
		found := -1
		for c, center := range kept {
			if pairwise.SquaredDistance(row, center) <= bandwidth*bandwidth {
				found = c
				break
			}
		}
		if found == -1 {
			kept = append(kept, append([]float64(nil), row...))
			found = len(kept) - 1
		}
		assignment[i] = found
	}

	ms.centers = mat.NewDense(len(kept), d, nil)
	for c, center := range kept {
		ms.centers.SetRow(c, center)
	}
	ms.labels = assignment
	_, inertia := centroids(x, assignment, len(kept), d)
	ms.outcome = capability.Outcome{Centroid: &capability.CentroidOutcome{Centers: ms.centers, Inertia: inertia}}
	return nil
}

func (ms *MeanShift) Predict(x *mat.Dense) ([]int, error) {
	if ms.centers == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = nearestRow(ms.centers, x.RawRowView(i))
	}
	return labels, nil
}

func (ms *MeanShift) Outcome() capability.Outcome { return ms.outcome }

func (ms *MeanShift) Params() map[string]interface{} {
	return map[string]interface{}{"bandwidth": ms.bandwidth}
}

// estimateBandwidth returns the 0.3 quantile of the pairwise distance
// distribution.
func estimateBandwidth(x *mat.Dense) float64 {
	n, _ := x.Dims()
	var dists []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dists = append(dists, math.Sqrt(pairwise.SquaredRowDistance(x, i, j)))
		}
	}
	if len(dists) == 0 {
		return 0
	}
	sort.Float64s(dists)
	return dists[int(0.3*float64(len(dists)-1))]
}

var _ capability.Clusterer = (*MeanShift)(nil)
