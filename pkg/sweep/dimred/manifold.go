package dimred

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// ErrOutOfSample marks a transform on data the embedding was not
// fitted on. The manifold methods embed the training samples only.
var ErrOutOfSample = errors.New("out-of-sample transform is not supported")

// embedding is the shared fitted state of the manifold methods.
type embedding struct {
	coords *mat.Dense
}

func (e *embedding) Transform(x *mat.Dense) (*mat.Dense, error) {
	if e.coords == nil {
		return nil, ErrNotFitted
	}
	r, _ := x.Dims()
	er, _ := e.coords.Dims()
	if r != er {
		return nil, ErrOutOfSample
	}
	return e.coords, nil
}

// Isomap embeds the data by classical MDS on graph geodesic distances
// over the k-nearest-neighbour graph.
type Isomap struct {
	embedding
	nNeighbors  int
	nComponents int
}

// NewIsomap returns an isomap embedding. Non-positive arguments take
// the defaults of 5 neighbours and 2 components.
func NewIsomap(nNeighbors, nComponents int) *Isomap {
	if nNeighbors < 1 {
		nNeighbors = 5
	}
	if nComponents < 1 {
		nComponents = 2
	}
	return &Isomap{nNeighbors: nNeighbors, nComponents: nComponents}
}

func (is *Isomap) Fit(x *mat.Dense) error {
	n, _ := x.Dims()
	if is.nNeighbors >= n {
		return errors.Errorf("isomap needs more than %d samples", is.nNeighbors)
	}
	dist, err := pairwise.Distances(x, pairwise.Euclidean)
	if err != nil {
		return err
	}

	inf := math.Inf(1)
	geo := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				geo.Set(i, j, inf)
			}
		}
	}
	for i := 0; i < n; i++ {
		for _, j := range nearest(dist, i, is.nNeighbors) {
			geo.Set(i, j, dist.At(i, j))
			geo.Set(j, i, dist.At(i, j))
		}
	}
	// Floyd-Warshall. The sample counts targeted here keep n^3 cheap.
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			ik := geo.At(i, k)
			if math.IsInf(ik, 1) {
				continue
			}
			for j := 0; j < n; j++ {
				if v := ik + geo.At(k, j); v < geo.At(i, j) {
					geo.Set(i, j, v)
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.IsInf(geo.At(i, j), 1) {
				return errors.New("neighbourhood graph is disconnected")
			}
		}
	}

	coords, err := classicalMDS(geo, is.nComponents)
	if err != nil {
		return err
	}
	is.coords = coords
	return nil
}

func (is *Isomap) Params() map[string]interface{} {
	return map[string]interface{}{"n_neighbors": is.nNeighbors, "n_components": is.nComponents}
}

// LLE methods.
const (
	MethodStandard = "standard"
	MethodLTSA     = "ltsa"
)

// LLE is a locally linear embedding. The ltsa method aligns local
// tangent spaces instead of reconstructing from neighbour weights.
type LLE struct {
	embedding
	method      string
	nNeighbors  int
	nComponents int
}

// NewLLE returns a locally linear embedding using the given method.
// Unknown methods fall back to standard.
func NewLLE(method string, nNeighbors, nComponents int) *LLE {
	if method != MethodLTSA {
		method = MethodStandard
	}
	if nNeighbors < 1 {
		nNeighbors = 5
	}
	if nComponents < 1 {
		nComponents = 2
	}
	return &LLE{method: method, nNeighbors: nNeighbors, nComponents: nComponents}
}

func (l *LLE) Fit(x *mat.Dense) error {
	n, _ := x.Dims()
	if l.nNeighbors >= n {
		return errors.Errorf("lle needs more than %d samples", l.nNeighbors)
	}
	dist, err := pairwise.Distances(x, pairwise.Euclidean)
	if err != nil {
		return err
	}

	m := mat.NewSymDense(n, nil)
	switch l.method {
	case MethodLTSA:
		l.accumulateLTSA(x, dist, m)
	default:
		l.accumulateStandard(x, dist, m)
	}

	coords, err := bottomEigenvectors(m, l.nComponents)
	if err != nil {
		return err
	}
	l.coords = coords
	return nil
}

// accumulateStandard builds M = (I-W)'(I-W) from the locally optimal
// reconstruction weights.
func (l *LLE) accumulateStandard(x, dist *mat.Dense, m *mat.SymDense) {
	n, d := x.Dims()
	w := mat.NewDense(n, n, nil)
	k := l.nNeighbors
	for i := 0; i < n; i++ {
		nb := nearest(dist, i, k)
		// Local Gram matrix of the shifted neighbourhood.
		g := mat.NewSymDense(k, nil)
		diffs := mat.NewDense(k, d, nil)
		for a, ja := range nb {
			for c := 0; c < d; c++ {
				diffs.Set(a, c, x.At(ja, c)-x.At(i, c))
			}
		}
		for a := 0; a < k; a++ {
			for b := a; b < k; b++ {
				g.SetSym(a, b, dot(diffs.RawRowView(a), diffs.RawRowView(b)))
			}
		}
		// Regularise for k > d or degenerate neighbourhoods.
		trace := 0.0
		for a := 0; a < k; a++ {
			trace += g.At(a, a)
		}
		reg := 1e-3 * trace
		if reg <= 0 {
			reg = 1e-3
		}
		for a := 0; a < k; a++ {
			g.SetSym(a, a, g.At(a, a)+reg)
		}

		ones := mat.NewVecDense(k, nil)
		for a := 0; a < k; a++ {
			ones.SetVec(a, 1)
		}
		var weights mat.VecDense
		if err := weights.SolveVec(g, ones); err != nil {
			// Singular even after regularisation: uniform weights.
			for a := 0; a < k; a++ {
				weights.SetVec(a, 1)
			}
		}
		var sum float64
		for a := 0; a < k; a++ {
			sum += weights.AtVec(a)
		}
		for a, ja := range nb {
			w.Set(i, ja, weights.AtVec(a)/sum)
		}
	}

	// M = (I-W)'(I-W)
	var iw mat.Dense
	iw.Scale(-1, w)
	for i := 0; i < n; i++ {
		iw.Set(i, i, iw.At(i, i)+1)
	}
	var full mat.Dense
	full.Mul(iw.T(), &iw)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, full.At(i, j))
		}
	}
}

// accumulateLTSA builds the tangent-space alignment matrix.
func (l *LLE) accumulateLTSA(x, dist *mat.Dense, m *mat.SymDense) {
	n, d := x.Dims()
	k := l.nNeighbors
	dims := l.nComponents
	if dims > d {
		dims = d
	}
	for i := 0; i < n; i++ {
		nb := append([]int{i}, nearest(dist, i, k)...)
		kk := len(nb)

		local := mat.NewDense(kk, d, nil)
		means := make([]float64, d)
		for a, ja := range nb {
			for c := 0; c < d; c++ {
				v := x.At(ja, c)
				local.Set(a, c, v)
				means[c] += v
			}
		}
		for c := range means {
			means[c] /= float64(kk)
		}
		for a := 0; a < kk; a++ {
			for c := 0; c < d; c++ {
				local.Set(a, c, local.At(a, c)-means[c])
			}
		}

		var svd mat.SVD
		if ok := svd.Factorize(local, mat.SVDThinU); !ok {
			continue
		}
		var u mat.Dense
		svd.UTo(&u)

		// G = [1/sqrt(k), U_1..dims]; correlation = G G'
		g := mat.NewDense(kk, dims+1, nil)
		for a := 0; a < kk; a++ {
			g.Set(a, 0, 1/math.Sqrt(float64(kk)))
			for c := 0; c < dims; c++ {
				g.Set(a, c+1, u.At(a, c))
			}
		}
		var corr mat.Dense
		corr.Mul(g, g.T())

		// M[nb,nb] += I - G G'
		for a, ja := range nb {
			for b, jb := range nb {
				if jb < ja {
					continue
				}
				v := -corr.At(a, b)
				if a == b {
					v++
				}
				m.SetSym(ja, jb, m.At(ja, jb)+v)
			}
		}
	}
}

func (l *LLE) Params() map[string]interface{} {
	return map[string]interface{}{"method": l.method, "n_neighbors": l.nNeighbors, "n_components": l.nComponents}
}

// SpectralEmbedding embeds by the bottom eigenvectors of the normalised
// graph laplacian of an rbf affinity.
type SpectralEmbedding struct {
	embedding
	nComponents int
	gamma       float64
}

// NewSpectralEmbedding returns a laplacian eigenmap embedding. gamma <= 0
// defaults to 1/n_features at fit time.
func NewSpectralEmbedding(nComponents int, gamma float64) *SpectralEmbedding {
	if nComponents < 1 {
		nComponents = 2
	}
	return &SpectralEmbedding{nComponents: nComponents, gamma: gamma}
}

func (s *SpectralEmbedding) Fit(x *mat.Dense) error {
	n, d := x.Dims()
	gamma := s.gamma
	if gamma <= 0 {
		gamma = 1 / float64(d)
	}

	sq := pairwise.SquaredEuclidean(x)
	affinity := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			affinity.SetSym(i, j, math.Exp(-gamma*sq.At(i, j)))
		}
	}

	coords, err := laplacianEigenmap(affinity, s.nComponents)
	if err != nil {
		return err
	}
	s.coords = coords
	return nil
}

func (s *SpectralEmbedding) Params() map[string]interface{} {
	return map[string]interface{}{"n_components": s.nComponents, "gamma": s.gamma}
}

// MDS embeds by classical multidimensional scaling on euclidean
// distances. The non-metric flavour scales the rank-transformed
// distances instead of the raw ones.
type MDS struct {
	embedding
	metric      bool
	nComponents int
}

// NewMDS returns a multidimensional scaling embedding.
func NewMDS(metric bool, nComponents int) *MDS {
	if nComponents < 1 {
		nComponents = 2
	}
	return &MDS{metric: metric, nComponents: nComponents}
}

func (m *MDS) Fit(x *mat.Dense) error {
	dist, err := pairwise.Distances(x, pairwise.Euclidean)
	if err != nil {
		return err
	}
	if !m.metric {
		dist = rankTransform(dist)
	}
	coords, err := classicalMDS(dist, m.nComponents)
	if err != nil {
		return err
	}
	m.coords = coords
	return nil
}

func (m *MDS) Params() map[string]interface{} {
	return map[string]interface{}{"metric": m.metric, "n_components": m.nComponents}
}

// rankTransform replaces every off-diagonal distance with its rank in
// the sorted distance list, normalised to the original scale.
func rankTransform(dist *mat.Dense) *mat.Dense {
	n, _ := dist.Dims()
	type entry struct {
		i, j int
		v    float64
	}
	var entries []entry
	maxDist := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			entries = append(entries, entry{i, j, dist.At(i, j)})
			maxDist = math.Max(maxDist, dist.At(i, j))
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].v < entries[b].v })

	out := mat.NewDense(n, n, nil)
	if len(entries) == 0 {
		return out
	}
	scale := maxDist / float64(len(entries))
	for rank, e := range entries {
		v := float64(rank+1) * scale
		out.Set(e.i, e.j, v)
		out.Set(e.j, e.i, v)
	}
	return out
}

func classicalMDS(dist *mat.Dense, k int) (*mat.Dense, error) {
	n, _ := dist.Dims()
	// Double-centred squared distances: B = -1/2 J D^2 J.
	rowMean := make([]float64, n)
	var grand float64
	sq := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := dist.At(i, j)
			sq.Set(i, j, v*v)
			rowMean[i] += v * v
		}
		rowMean[i] /= float64(n)
		grand += rowMean[i]
	}
	grand /= float64(n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(sq.At(i, j)-rowMean[i]-rowMean[j]+grand))
		}
	}

	vals, vecs, err := eigenDescending(b)
	if err != nil {
		return nil, err
	}
	coords := mat.NewDense(n, k, nil)
	for j := 0; j < k && j < len(vals); j++ {
		if vals[j] <= 0 {
			break
		}
		scale := math.Sqrt(vals[j])
		for i := 0; i < n; i++ {
			coords.Set(i, j, vecs.At(i, j)*scale)
		}
	}
	return coords, nil
}

// laplacianEigenmap returns the k eigenvectors of the normalised
// laplacian with the smallest non-trivial eigenvalues, rescaled by the
// inverse square-root degrees.
func laplacianEigenmap(affinity *mat.SymDense, k int) (*mat.Dense, error) {
	n := affinity.SymmetricDim()
	invSqrtDeg := make([]float64, n)
	for i := 0; i < n; i++ {
		var deg float64
		for j := 0; j < n; j++ {
			deg += affinity.At(i, j)
		}
		if deg <= 0 {
			return nil, errors.New("isolated sample in affinity graph")
		}
		invSqrtDeg[i] = 1 / math.Sqrt(deg)
	}
	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := -affinity.At(i, j) * invSqrtDeg[i] * invSqrtDeg[j]
			if i == j {
				v++
			}
			lap.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(lap, true); !ok {
		return nil, errors.New("eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Ascending order: skip the trivial first eigenvector.
	coords := mat.NewDense(n, k, nil)
	for j := 0; j < k && j+1 < n; j++ {
		for i := 0; i < n; i++ {
			coords.Set(i, j, vecs.At(i, j+1)*invSqrtDeg[i])
		}
	}
	return coords, nil
}

// bottomEigenvectors returns the k eigenvectors of m with the smallest
// eigenvalues, skipping the first (constant) one.
func bottomEigenvectors(m *mat.SymDense, k int) (*mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(m, true); !ok {
		return nil, errors.New("eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	n := m.SymmetricDim()
	coords := mat.NewDense(n, k, nil)
	for j := 0; j < k && j+1 < n; j++ {
		for i := 0; i < n; i++ {
			coords.Set(i, j, vecs.At(i, j+1))
		}
	}
	return coords, nil
}

// nearest returns the indices of the k rows closest to row i, excluding
// i itself.
func nearest(dist *mat.Dense, i, k int) []int {
	n, _ := dist.Dims()
	idx := make([]int, 0, n-1)
	for j := 0; j < n; j++ {
		if j != i {
			idx = append(idx, j)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return dist.At(i, idx[a]) < dist.At(i, idx[b]) })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

var (
	_ capability.Transformer = (*Isomap)(nil)
	_ capability.Transformer = (*LLE)(nil)
	_ capability.Transformer = (*SpectralEmbedding)(nil)
	_ capability.Transformer = (*MDS)(nil)
)
