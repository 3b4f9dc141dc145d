package cluster

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// Supported linkages.
const (
	LinkageWard     = "ward"
	LinkageComplete = "complete"
	LinkageAverage  = "average"
)

// ErrWardAffinity marks the undefined combination of ward linkage with
// a non-euclidean affinity.
var ErrWardAffinity = errors.New("ward linkage requires euclidean affinity")

// Hierarchical is an agglomerative clusterer. It merges the closest
// pair of clusters until one remains, recording the merge tree, and
// labels samples by cutting the tree at the requested cluster count.
type Hierarchical struct {
	nClusters int
	affinity  string
	linkage   string

	train   *mat.Dense
	labels  []int
	outcome capability.Outcome
}

// NewHierarchical returns an agglomerative clusterer.
func NewHierarchical(nClusters int, affinity, linkage string) (*Hierarchical, error) {
	if nClusters < 1 {
		return nil, errors.Errorf("n_clusters must be positive, got %d", nClusters)
	}
	if affinity == "" {
		affinity = pairwise.Euclidean
	}
	if linkage == "" {
		linkage = LinkageWard
	}
	switch linkage {
	case LinkageWard, LinkageComplete, LinkageAverage:
	default:
		return nil, errors.Errorf("unknown linkage %q", linkage)
	}
	if linkage == LinkageWard && affinity != pairwise.Euclidean {
		return nil, errors.Wrap(ErrWardAffinity, affinity)
	}
	return &Hierarchical{nClusters: nClusters, affinity: affinity, linkage: linkage}, nil
}

func (h *Hierarchical) Fit(x *mat.Dense) error {
	n, _ := x.Dims()
	if h.nClusters > n {
		return errors.Errorf("cannot fit %d clusters on %d samples", h.nClusters, n)
	}
	h.train = mat.DenseCopyOf(x)

	dist, err := pairwise.Distances(x, h.affinity)
	if err != nil {
		return err
	}

	// Working distances: ward runs Lance-Williams on squared distances.
	squared := h.linkage == LinkageWard
	work := make([][]float64, n)
	for i := range work {
		work[i] = make([]float64, n)
		for j := range work[i] {
			v := dist.At(i, j)
			if squared {
				v *= v
			}
			work[i][j] = v
		}
	}

	active := make([]bool, n)
	size := make([]int, n)
	node := make([]int, n)
	members := make([][]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
		node[i] = i
		members[i] = []int{i}
	}

	children := make([][2]int, 0, n-1)
	distances := make([]float64, 0, n-1)
	labels := make([]int, n)

	for step := 0; step < n-1; step++ {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && work[i][j] < best {
					bi, bj, best = i, j, work[i][j]
				}
			}
		}

		children = append(children, [2]int{node[bi], node[bj]})
		if squared {
			distances = append(distances, math.Sqrt(best))
		} else {
			distances = append(distances, best)
		}

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			var v float64
			switch h.linkage {
			case LinkageWard:
				ni, nj, nk := float64(size[bi]), float64(size[bj]), float64(size[k])
				v = ((ni+nk)*work[bi][k] + (nj+nk)*work[bj][k] - nk*work[bi][bj]) / (ni + nj + nk)
			case LinkageComplete:
				v = math.Max(work[bi][k], work[bj][k])
			case LinkageAverage:
				ni, nj := float64(size[bi]), float64(size[bj])
				v = (ni*work[bi][k] + nj*work[bj][k]) / (ni + nj)
			}
			work[bi][k] = v
			work[k][bi] = v
		}

		members[bi] = append(members[bi], members[bj]...)
		size[bi] += size[bj]
		node[bi] = n + step
		active[bj] = false

		// Snapshot the labelling when the cut level is reached.
		if n-step-1 == h.nClusters {
			label := 0
			for i := 0; i < n; i++ {
				if !active[i] {
					continue
				}
				for _, m := range members[i] {
					labels[m] = label
				}
				label++
			}
		}
	}
	if h.nClusters == n {
		for i := range labels {
			labels[i] = i
		}
	}

	h.labels = labels
	h.outcome = capability.Outcome{
		Hierarchical: &capability.HierarchicalOutcome{Children: children, Distances: distances},
	}
	return nil
}

func (h *Hierarchical) Predict(x *mat.Dense) ([]int, error) {
	if h.labels == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	if tn, _ := h.train.Dims(); tn == n {
		return append([]int(nil), h.labels...), nil
	}
	if h.affinity == pairwise.Precomputed {
		return nil, errors.New("cannot predict new samples with a precomputed affinity")
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = h.labels[nearestRow(h.train, x.RawRowView(i))]
	}
	return labels, nil
}

func (h *Hierarchical) Outcome() capability.Outcome { return h.outcome }

func (h *Hierarchical) Params() map[string]interface{} {
	return map[string]interface{}{"n_clusters": h.nClusters, "affinity": h.affinity, "linkage": h.linkage}
}

var _ capability.Clusterer = (*Hierarchical)(nil)
