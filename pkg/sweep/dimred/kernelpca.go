package dimred

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// Supported kernels.
const (
	KernelLinear = "linear"
	KernelRBF    = "rbf"
	KernelPoly   = "poly"
	KernelCosine = "cosine"
)

// KernelPCA performs PCA in the feature space induced by a kernel.
//
// For the rbf kernel with an unset gamma, gamma defaults to 1/(2*sigma^2)
// where sigma is the average distance to the 6th nearest neighbour of the
// training samples. This keeps the kernel width tied to the local scale
// of the data instead of the feature count.
type KernelPCA struct {
	kernel string
	gamma  float64
	degree int
	coef0  float64

	train    *mat.Dense
	rowMean  []float64
	allMean  float64
	alphas   *mat.Dense
	eigvals  []float64
	fitGamma float64
}

// NewKernelPCA builds a kernel PCA for the given kernel. Unknown kernel
// names fall back to linear. gamma <= 0 means "pick a default at fit
// time".
func NewKernelPCA(kernel string, gamma float64) *KernelPCA {
	switch kernel {
	case KernelLinear, KernelRBF, KernelPoly, KernelCosine:
	default:
		kernel = KernelLinear
	}
	return &KernelPCA{kernel: kernel, gamma: gamma, degree: 3, coef0: 1}
}

func (k *KernelPCA) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	k.train = mat.DenseCopyOf(x)

	k.fitGamma = k.gamma
	if k.fitGamma <= 0 {
		if k.kernel == KernelRBF {
			sigma := autoSigma(x, 5)
			if sigma <= 0 {
				return errors.New("degenerate data: auto sigma is zero")
			}
			k.fitGamma = 1.0 / (2 * sigma * sigma)
		} else {
			k.fitGamma = 1.0 / float64(d)
		}
	}

	gram := k.gram(x, x)
	k.rowMean = make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k.rowMean[i] += gram.At(i, j)
		}
		k.rowMean[i] /= float64(n)
		k.allMean += k.rowMean[i]
	}
	k.allMean /= float64(n)

	centeredGram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := gram.At(i, j) - k.rowMean[i] - k.rowMean[j] + k.allMean
			centeredGram.SetSym(i, j, v)
		}
	}

	vals, vecs, err := eigenDescending(centeredGram)
	if err != nil {
		return err
	}

	// Keep the components with a non-vanishing eigenvalue and scale the
	// eigenvectors so projections are alpha = v / sqrt(lambda).
	var kept int
	for _, v := range vals {
		if v > 1e-10 {
			kept++
		}
	}
	if kept == 0 {
		return errors.New("kernel matrix has no positive eigenvalue")
	}
	alphas := mat.NewDense(n, kept, nil)
	k.eigvals = vals[:kept]
	for j := 0; j < kept; j++ {
		scale := 1.0 / math.Sqrt(vals[j])
		for i := 0; i < n; i++ {
			alphas.Set(i, j, vecs.At(i, j)*scale)
		}
	}
	k.alphas = alphas
	return nil
}

func (k *KernelPCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	if k.alphas == nil {
		return nil, ErrNotFitted
	}
	m, _ := x.Dims()
	n, _ := k.train.Dims()

	gram := k.gram(x, k.train)
	centeredGram := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		var rowMean float64
		for j := 0; j < n; j++ {
			rowMean += gram.At(i, j)
		}
		rowMean /= float64(n)
		for j := 0; j < n; j++ {
			centeredGram.Set(i, j, gram.At(i, j)-rowMean-k.rowMean[j]+k.allMean)
		}
	}

	var out mat.Dense
	out.Mul(centeredGram, k.alphas)
	return &out, nil
}

func (k *KernelPCA) gram(a, b *mat.Dense) *mat.Dense {
	ra, _ := a.Dims()
	rb, _ := b.Dims()
	g := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		ai := a.RawRowView(i)
		for j := 0; j < rb; j++ {
			bj := b.RawRowView(j)
			switch k.kernel {
			case KernelRBF:
				g.Set(i, j, math.Exp(-k.fitGamma*pairwise.SquaredDistance(ai, bj)))
			case KernelPoly:
				g.Set(i, j, math.Pow(k.fitGamma*dot(ai, bj)+k.coef0, float64(k.degree)))
			case KernelCosine:
				na, nb := norm(ai), norm(bj)
				if na == 0 || nb == 0 {
					g.Set(i, j, 0)
				} else {
					g.Set(i, j, dot(ai, bj)/(na*nb))
				}
			default:
				g.Set(i, j, dot(ai, bj))
			}
		}
	}
	return g
}

func (k *KernelPCA) Params() map[string]interface{} {
	return map[string]interface{}{"kernel": k.kernel, "gamma": k.fitGamma, "degree": k.degree, "coef0": k.coef0}
}

// autoSigma is the average distance to the (n+1)-th nearest neighbour
// across all samples.
func autoSigma(x *mat.Dense, nNeighbors int) float64 {
	n, _ := x.Dims()
	if nNeighbors+1 >= n {
		nNeighbors = n - 2
		if nNeighbors < 0 {
			return 0
		}
	}
	var sum float64
	for i := 0; i < n; i++ {
		dists := make([]float64, 0, n)
		for j := 0; j < n; j++ {
			dists = append(dists, math.Sqrt(pairwise.SquaredRowDistance(x, i, j)))
		}
		sort.Float64s(dists)
		sum += dists[nNeighbors+1]
	}
	return sum / float64(n)
}

func dot(a, b []float64) float64 {
	var s float64
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

var _ capability.Transformer = (*KernelPCA)(nil)
