// Package dimred holds the dimensionality-reduction capabilities: the
// PCA family, kernel PCA and the manifold-learning embeddings.
package dimred

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
)

var ErrNotFitted = errors.New("reducer must be fitted first")

// PCA projects the data onto its principal components. By default it
// keeps every component the decomposition can produce.
type PCA struct {
	mean       []float64
	components *mat.Dense
}

// NewPCA returns a full principal-component analysis.
func NewPCA() *PCA { return &PCA{} }

func (p *PCA) Fit(x *mat.Dense) error {
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return errors.New("principal component decomposition failed")
	}
	var vec mat.Dense
	pc.VectorsTo(&vec)
	p.components = &vec
	p.mean = columnMeans(x)
	return nil
}

func (p *PCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	if p.components == nil {
		return nil, ErrNotFitted
	}
	var out mat.Dense
	out.Mul(centered(x, p.mean), p.components)
	return &out, nil
}

func (p *PCA) Params() map[string]interface{} {
	params := map[string]interface{}{"svd_solver": "full"}
	if p.components != nil {
		_, k := p.components.Dims()
		params["n_components"] = k
	}
	return params
}

// IncrementalPCA accumulates the column means and scatter matrix in
// fixed-size chunks, then eigen-decomposes the covariance. Equivalent
// to PCA on the full matrix, but the fit never materialises more than
// one chunk of centred data.
type IncrementalPCA struct {
	batchSize  int
	mean       []float64
	components *mat.Dense
}

// NewIncrementalPCA returns a chunked PCA with the given batch size.
// Sizes below 1 fall back to 5 times the feature count at fit time.
func NewIncrementalPCA(batchSize int) *IncrementalPCA {
	return &IncrementalPCA{batchSize: batchSize}
}

func (p *IncrementalPCA) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	batch := p.batchSize
	if batch < 1 {
		batch = 5 * d
	}

	scatter := mat.NewSymDense(d, nil)
	sums := make([]float64, d)
	for start := 0; start < n; start += batch {
		end := start + batch
		if end > n {
			end = n
		}
		chunk := x.Slice(start, end, 0, d).(*mat.Dense)
		for i := start; i < end; i++ {
			row := x.RawRowView(i)
			for j, v := range row {
				sums[j] += v
			}
		}
		var cross mat.Dense
		cross.Mul(chunk.T(), chunk)
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				scatter.SetSym(i, j, scatter.At(i, j)+cross.At(i, j))
			}
		}
	}

	p.mean = make([]float64, d)
	for j, s := range sums {
		p.mean[j] = s / float64(n)
	}
	// Covariance from the scatter matrix and the mean.
	cov := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := (scatter.At(i, j) - float64(n)*p.mean[i]*p.mean[j]) / float64(n-1)
			cov.SetSym(i, j, v)
		}
	}

	vals, vecs, err := eigenDescending(cov)
	if err != nil {
		return err
	}
	_ = vals
	p.components = vecs
	return nil
}

func (p *IncrementalPCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	if p.components == nil {
		return nil, ErrNotFitted
	}
	var out mat.Dense
	out.Mul(centered(x, p.mean), p.components)
	return &out, nil
}

func (p *IncrementalPCA) Params() map[string]interface{} {
	return map[string]interface{}{"batch_size": p.batchSize}
}

// RandomizedPCA approximates the principal components with a gaussian
// range finder followed by an exact SVD of the small projected matrix.
type RandomizedPCA struct {
	seed       int64
	mean       []float64
	components *mat.Dense
}

// NewRandomizedPCA returns a randomized PCA. The seed makes repeated
// expansions reproducible.
func NewRandomizedPCA(seed int64) *RandomizedPCA { return &RandomizedPCA{seed: seed} }

func (p *RandomizedPCA) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	k := n
	if d < k {
		k = d
	}
	p.mean = columnMeans(x)
	xc := centered(x, p.mean)

	rng := rand.New(rand.NewSource(p.seed))
	omega := mat.NewDense(d, k, nil)
	for i := 0; i < d; i++ {
		for j := 0; j < k; j++ {
			omega.Set(i, j, rng.NormFloat64())
		}
	}

	var y mat.Dense
	y.Mul(xc, omega)
	var qr mat.QR
	qr.Factorize(&y)
	var q mat.Dense
	qr.QTo(&q)

	var b mat.Dense
	b.Mul(q.T(), xc)
	var svd mat.SVD
	if ok := svd.Factorize(&b, mat.SVDThin); !ok {
		return errors.New("svd of projected matrix failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	p.components = &v
	return nil
}

func (p *RandomizedPCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	if p.components == nil {
		return nil, ErrNotFitted
	}
	var out mat.Dense
	out.Mul(centered(x, p.mean), p.components)
	return &out, nil
}

func (p *RandomizedPCA) Params() map[string]interface{} {
	return map[string]interface{}{"svd_solver": "randomized", "random_state": p.seed}
}

func columnMeans(x *mat.Dense) []float64 {
	n, d := x.Dims()
	means := make([]float64, d)
	for i := 0; i < n; i++ {
		for j, v := range x.RawRowView(i) {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	return means
}

func centered(x *mat.Dense, mean []float64) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			out.Set(i, j, x.At(i, j)-mean[j])
		}
	}
	return out
}

// eigenDescending returns the eigenvalues and eigenvectors of s sorted
// by decreasing eigenvalue.
func eigenDescending(s *mat.SymDense) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, nil, errors.New("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// EigenSym reports ascending order.
	d := len(vals)
	sorted := mat.NewDense(d, d, nil)
	outVals := make([]float64, d)
	for j := 0; j < d; j++ {
		src := d - 1 - j
		outVals[j] = vals[src]
		for i := 0; i < d; i++ {
			sorted.Set(i, j, vecs.At(i, src))
		}
	}
	return outVals, sorted, nil
}

var (
	_ capability.Transformer = (*PCA)(nil)
	_ capability.Transformer = (*IncrementalPCA)(nil)
	_ capability.Transformer = (*RandomizedPCA)(nil)
)
