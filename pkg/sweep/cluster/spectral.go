package cluster

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/dimred"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// Spectral clusters by k-means over a laplacian eigenmap of the rbf
// affinity graph.
type Spectral struct {
	nClusters int
	gamma     float64

	train   *mat.Dense
	labels  []int
	outcome capability.Outcome
}

// NewSpectral returns a spectral clusterer. gamma <= 0 defaults to 1.
func NewSpectral(nClusters int, gamma float64) (*Spectral, error) {
	if nClusters < 2 {
		return nil, errors.Errorf("n_clusters must be at least 2, got %d", nClusters)
	}
	if gamma <= 0 {
		gamma = 1
	}
	return &Spectral{nClusters: nClusters, gamma: gamma}, nil
}

func (s *Spectral) Fit(x *mat.Dense) error {
	n, _ := x.Dims()
	if s.nClusters > n {
		return errors.Errorf("cannot fit %d clusters on %d samples", s.nClusters, n)
	}
	s.train = mat.DenseCopyOf(x)

	embed := dimred.NewSpectralEmbedding(s.nClusters, s.gamma)
	if err := embed.Fit(x); err != nil {
		return errors.Wrap(err, "unable to embed affinity graph")
	}
	coords, err := embed.Transform(x)
	if err != nil {
		return err
	}

	km, err := NewKMeans(s.nClusters, 0)
	if err != nil {
		return err
	}
	if err := km.Fit(coords); err != nil {
		return errors.Wrap(err, "unable to cluster the embedding")
	}
	labels, err := km.Predict(coords)
	if err != nil {
		return err
	}
	s.labels = labels

	sq := pairwise.SquaredEuclidean(x)
	affinity := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			affinity.Set(i, j, math.Exp(-s.gamma*sq.At(i, j)))
		}
	}
	s.outcome = capability.Outcome{Affinity: &capability.AffinityOutcome{Matrix: affinity}}
	return nil
}

func (s *Spectral) Predict(x *mat.Dense) ([]int, error) {
	if s.labels == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	if tn, _ := s.train.Dims(); tn == n {
		return append([]int(nil), s.labels...), nil
	}
	// New samples take the label of their nearest fitted sample.
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = s.labels[nearestRow(s.train, x.RawRowView(i))]
	}
	return labels, nil
}

func (s *Spectral) Outcome() capability.Outcome { return s.outcome }

func (s *Spectral) Params() map[string]interface{} {
	return map[string]interface{}{"n_clusters": s.nClusters, "gamma": s.gamma}
}

var _ capability.Clusterer = (*Spectral)(nil)
