package dimred

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// TSNE is an exact t-distributed stochastic neighbour embedding. No
// tree approximation: the targeted batch sizes stay well below the
// point where exact gradients become a problem.
type TSNE struct {
	embedding
	nComponents int
	perplexity  float64
	iterations  int
	seed        int64
}

// NewTSNE returns a t-SNE embedding with the given component count.
func NewTSNE(nComponents int, seed int64) *TSNE {
	if nComponents < 1 {
		nComponents = 3
	}
	return &TSNE{nComponents: nComponents, perplexity: 30, iterations: 300, seed: seed}
}

func (t *TSNE) Fit(x *mat.Dense) error {
	n, _ := x.Dims()

	perplexity := t.perplexity
	if limit := float64(n-1) / 3; perplexity > limit {
		perplexity = limit
	}
	if perplexity < 1 {
		perplexity = 1
	}

	p := t.jointProbabilities(x, perplexity)

	rng := rand.New(rand.NewSource(t.seed))
	y := mat.NewDense(n, t.nComponents, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < t.nComponents; j++ {
			y.Set(i, j, rng.NormFloat64()*1e-4)
		}
	}

	const (
		earlyExaggeration = 4.0
		exaggerationSpan  = 100
		learningRate      = 200.0
	)
	velocity := mat.NewDense(n, t.nComponents, nil)
	grad := mat.NewDense(n, t.nComponents, nil)
	q := mat.NewDense(n, n, nil)

	for iter := 0; iter < t.iterations; iter++ {
		exaggeration := 1.0
		if iter < exaggerationSpan {
			exaggeration = earlyExaggeration
		}
		momentum := 0.5
		if iter >= 20 {
			momentum = 0.8
		}

		// Student-t affinities in the embedding.
		var qSum float64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				v := 1 / (1 + pairwise.SquaredRowDistance(y, i, j))
				q.Set(i, j, v)
				q.Set(j, i, v)
				qSum += 2 * v
			}
		}

		grad.Zero()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				mult := (exaggeration*p.At(i, j) - q.At(i, j)/qSum) * q.At(i, j)
				for c := 0; c < t.nComponents; c++ {
					grad.Set(i, c, grad.At(i, c)+4*mult*(y.At(i, c)-y.At(j, c)))
				}
			}
		}

		for i := 0; i < n; i++ {
			for c := 0; c < t.nComponents; c++ {
				v := momentum*velocity.At(i, c) - learningRate*grad.At(i, c)
				velocity.Set(i, c, v)
				y.Set(i, c, y.At(i, c)+v)
			}
		}
	}

	t.coords = y
	return nil
}

// jointProbabilities computes the symmetrised gaussian input
// affinities, tuning each sample's bandwidth to the target perplexity
// by bisection.
func (t *TSNE) jointProbabilities(x *mat.Dense, perplexity float64) *mat.Dense {
	n, _ := x.Dims()
	sq := pairwise.SquaredEuclidean(x)
	target := math.Log(perplexity)

	cond := mat.NewDense(n, n, nil)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := 0.0, math.Inf(1)
		beta := 1.0
		for step := 0; step < 50; step++ {
			var sum float64
			for j := 0; j < n; j++ {
				if j == i {
					row[j] = 0
					continue
				}
				row[j] = math.Exp(-beta * sq.At(i, j))
				sum += row[j]
			}
			if sum == 0 {
				sum = 1e-12
			}
			var entropy float64
			for j := 0; j < n; j++ {
				if row[j] > 0 {
					pj := row[j] / sum
					entropy -= pj * math.Log(pj)
				}
			}
			if math.Abs(entropy-target) < 1e-5 {
				break
			}
			if entropy > target {
				lo = beta
				if math.IsInf(hi, 1) {
					beta *= 2
				} else {
					beta = (beta + hi) / 2
				}
			} else {
				hi = beta
				beta = (beta + lo) / 2
			}
		}
		var sum float64
		for j := 0; j < n; j++ {
			sum += row[j]
		}
		if sum == 0 {
			sum = 1e-12
		}
		for j := 0; j < n; j++ {
			cond.Set(i, j, row[j]/sum)
		}
	}

	p := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := (cond.At(i, j) + cond.At(j, i)) / (2 * float64(n))
			if v < 1e-12 {
				v = 1e-12
			}
			p.Set(i, j, v)
		}
	}
	return p
}

func (t *TSNE) Params() map[string]interface{} {
	return map[string]interface{}{"n_components": t.nComponents, "perplexity": t.perplexity, "n_iter": t.iterations}
}

var _ capability.Transformer = (*TSNE)(nil)
