package cluster

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// AffinityPropagation clusters by exchanging responsibility and
// availability messages over the negative squared-distance similarity
// matrix until a stable set of exemplars emerges.
type AffinityPropagation struct {
	preference float64
	damping    float64
	maxIter    int
	convIter   int
	affinity   string

	train     *mat.Dense
	exemplars []int
	centers   *mat.Dense
	labels    []int
	outcome   capability.Outcome
}

// NewAffinityPropagation returns an affinity-propagation clusterer.
// affinity is "euclidean" or "precomputed"; with precomputed the fitted
// matrix is taken as the similarity matrix directly.
func NewAffinityPropagation(preference, damping float64, affinity string) (*AffinityPropagation, error) {
	if damping <= 0 {
		damping = 0.5
	}
	if damping < 0.5 || damping >= 1 {
		return nil, errors.Errorf("damping must be in [0.5, 1), got %v", damping)
	}
	switch affinity {
	case "":
		affinity = pairwise.Euclidean
	case pairwise.Euclidean, pairwise.Precomputed:
	default:
		return nil, errors.Wrap(pairwise.ErrUnknownMetric, affinity)
	}
	return &AffinityPropagation{
		preference: preference,
		damping:    damping,
		maxIter:    200,
		convIter:   15,
		affinity:   affinity,
	}, nil
}

// Affinity reports the configured similarity metric.
func (ap *AffinityPropagation) Affinity() string { return ap.affinity }

func (ap *AffinityPropagation) Fit(x *mat.Dense) error {
	n, _ := x.Dims()
	ap.train = mat.DenseCopyOf(x)

	var sim *mat.Dense
	if ap.affinity == pairwise.Precomputed {
		sim = mat.DenseCopyOf(x)
	} else {
		sq := pairwise.SquaredEuclidean(x)
		sim = mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				sim.Set(i, j, -sq.At(i, j))
			}
		}
	}
	for i := 0; i < n; i++ {
		sim.Set(i, i, ap.preference)
	}

	resp := mat.NewDense(n, n, nil)
	avail := mat.NewDense(n, n, nil)
	stable := 0
	var exemplars []int

	for iter := 0; iter < ap.maxIter; iter++ {
		// Responsibilities.
		for i := 0; i < n; i++ {
			max1, max2, argmax := negInf, negInf, -1
			for k := 0; k < n; k++ {
				v := avail.At(i, k) + sim.At(i, k)
				if v > max1 {
					max2 = max1
					max1, argmax = v, k
				} else if v > max2 {
					max2 = v
				}
			}
			for k := 0; k < n; k++ {
				ref := max1
				if k == argmax {
					ref = max2
				}
				v := sim.At(i, k) - ref
				resp.Set(i, k, ap.damping*resp.At(i, k)+(1-ap.damping)*v)
			}
		}
		// Availabilities.
		for k := 0; k < n; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				if i != k {
					if r := resp.At(i, k); r > 0 {
						sum += r
					}
				}
			}
			for i := 0; i < n; i++ {
				var v float64
				if i == k {
					v = sum
				} else {
					v = resp.At(k, k) + sum
					if r := resp.At(i, k); r > 0 {
						v -= r
					}
					if v > 0 {
						v = 0
					}
				}
				avail.Set(i, k, ap.damping*avail.At(i, k)+(1-ap.damping)*v)
			}
		}

		var current []int
		for k := 0; k < n; k++ {
			if resp.At(k, k)+avail.At(k, k) > 0 {
				current = append(current, k)
			}
		}
		if equalInts(current, exemplars) && len(current) > 0 {
			stable++
			if stable >= ap.convIter {
				exemplars = current
				break
			}
		} else {
			stable = 0
		}
		exemplars = current
	}

	if len(exemplars) == 0 {
		return errors.New("affinity propagation did not converge to any exemplar")
	}
	ap.exemplars = exemplars

	ap.labels = make([]int, n)
	for i := 0; i < n; i++ {
		best, bestSim := 0, negInf
		for c, k := range exemplars {
			if s := sim.At(i, k); s > bestSim {
				best, bestSim = c, s
			}
		}
		ap.labels[i] = best
	}
	for c, k := range exemplars {
		ap.labels[k] = c
	}

	_, d := x.Dims()
	ap.centers = mat.NewDense(len(exemplars), d, nil)
	for c, k := range exemplars {
		for j := 0; j < d; j++ {
			ap.centers.Set(c, j, x.At(k, j))
		}
	}
	ap.outcome = capability.Outcome{
		Centroid: &capability.CentroidOutcome{Centers: ap.centers},
		Affinity: &capability.AffinityOutcome{Matrix: sim, Exemplars: exemplars},
	}
	return nil
}

func (ap *AffinityPropagation) Predict(x *mat.Dense) ([]int, error) {
	if ap.centers == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	if ap.affinity == pairwise.Precomputed {
		// Similarities against new samples are not available; only the
		// fitted matrix can be labelled.
		if tn, _ := ap.train.Dims(); tn == n {
			return append([]int(nil), ap.labels...), nil
		}
		return nil, errors.New("cannot predict new samples with a precomputed affinity")
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = nearestRow(ap.centers, x.RawRowView(i))
	}
	return labels, nil
}

func (ap *AffinityPropagation) Outcome() capability.Outcome { return ap.outcome }

func (ap *AffinityPropagation) Params() map[string]interface{} {
	return map[string]interface{}{
		"preference": ap.preference,
		"damping":    ap.damping,
		"affinity":   ap.affinity,
		"max_iter":   ap.maxIter,
	}
}

var negInf = math.Inf(-1)

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ capability.Clusterer = (*AffinityPropagation)(nil)
