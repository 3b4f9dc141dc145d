package cluster

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// maxGridValues bounds the size of the heuristic parameter grids so a
// single auto-tuned stage never dominates the batch.
const maxGridValues = 30

// minSamplesPerFold is the data-poor threshold: below it the fold count
// is halved before searching.
const minSamplesPerFold = 5

var ErrEmptyGrid = errors.New("heuristic produced an empty parameter grid")

// Builder constructs a fresh base clusterer for one candidate value of
// the tuned parameter.
type Builder func(value float64) (capability.Clusterer, error)

// GridFunc derives the candidate values for the tuned parameter from
// the data.
type GridFunc func(x *mat.Dense, folds int) []float64

// Selector auto-tunes one parameter of a clustering capability (the
// cluster count for centroid methods, the preference for affinity
// propagation) by K-fold cross-validated grid search on the silhouette
// objective. It wraps the base clusterer by composition and exposes the
// same capability surface once fitted.
type Selector struct {
	log         *zap.Logger
	paramName   string
	build       Builder
	grid        GridFunc
	folds       int
	precomputed bool

	best      capability.Clusterer
	bestValue float64
	bestScore float64
	usedFolds int
}

// NewSelector wraps a clusterer family in a cross-validated search over
// the named parameter. precomputed marks a base affinity of
// "precomputed", for which the silhouette objective is undefined. A nil
// logger is replaced with a no-op one.
func NewSelector(log *zap.Logger, paramName string, build Builder, grid GridFunc, folds int, precomputed bool) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	if folds < 2 {
		folds = 10
	}
	return &Selector{
		log:         log,
		paramName:   paramName,
		build:       build,
		grid:        grid,
		folds:       folds,
		precomputed: precomputed,
	}
}

func (s *Selector) Fit(x *mat.Dense) error {
	n, _ := x.Dims()

	folds := s.folds
	if float64(n)/float64(folds) < minSamplesPerFold {
		s.log.Warn("data poor: halving the number of cross-validation splits",
			zap.Int("folds", folds), zap.Int("samples", n))
		folds /= 2
		if folds < 2 {
			folds = 2
		}
	}
	if folds > n {
		s.log.Warn("more cross-validation splits than samples; clamping",
			zap.Int("folds", folds), zap.Int("samples", n))
		folds = n
	}
	s.usedFolds = folds

	candidates := s.grid(x, folds)
	if len(candidates) == 0 {
		return ErrEmptyGrid
	}

	bestValue, bestScore := candidates[0], math.NaN()
	for _, value := range candidates {
		score := s.crossValidate(x, value, folds)
		s.log.Debug("grid candidate scored",
			zap.String("param", s.paramName), zap.Float64("value", value), zap.Float64("score", score))
		if math.IsNaN(score) {
			continue
		}
		if math.IsNaN(bestScore) || score > bestScore {
			bestValue, bestScore = value, score
		}
	}
	if math.IsNaN(bestScore) {
		s.log.Warn("every grid candidate scored NaN; keeping the first",
			zap.String("param", s.paramName), zap.Float64("value", bestValue))
	}

	best, err := s.build(bestValue)
	if err != nil {
		return errors.Wrapf(err, "unable to build final clusterer with %s=%v", s.paramName, bestValue)
	}
	if err := best.Fit(x); err != nil {
		return errors.Wrap(err, "unable to refit the selected clusterer")
	}
	s.best = best
	s.bestValue = bestValue
	s.bestScore = bestScore
	return nil
}

// crossValidate returns the mean silhouette across folds for one
// candidate value. Any failing or invalid fold makes the whole
// candidate NaN, which ranks it below every real score.
func (s *Selector) crossValidate(x *mat.Dense, value float64, folds int) float64 {
	n, _ := x.Dims()
	var total float64
	for f := 0; f < folds; f++ {
		lo, hi := f*n/folds, (f+1)*n/folds
		// A split that holds out nothing, or everything, cannot be scored.
		if hi == lo || hi-lo == n {
			return math.NaN()
		}
		train, test := splitRows(x, lo, hi)

		model, err := s.build(value)
		if err != nil {
			return math.NaN()
		}
		if err := model.Fit(train); err != nil {
			return math.NaN()
		}
		if s.precomputed {
			// Silhouette over a precomputed affinity cannot be scored
			// against held-out samples.
			return math.NaN()
		}
		labels, err := model.Predict(test)
		if err != nil {
			return math.NaN()
		}
		score := Silhouette(test, labels)
		if math.IsNaN(score) {
			return math.NaN()
		}
		total += score
	}
	return total / float64(folds)
}

func (s *Selector) Predict(x *mat.Dense) ([]int, error) {
	if s.best == nil {
		return nil, ErrNotFitted
	}
	return s.best.Predict(x)
}

func (s *Selector) Outcome() capability.Outcome {
	if s.best == nil {
		return capability.Outcome{}
	}
	return s.best.Outcome()
}

func (s *Selector) Params() map[string]interface{} {
	params := map[string]interface{}{
		"cv":         s.usedFolds,
		"param_name": s.paramName,
	}
	if s.best == nil {
		return params
	}
	for k, v := range s.best.Params() {
		params[k] = v
	}
	params["best_"+s.paramName] = s.bestValue
	params["best_score"] = s.bestScore
	if outcome := s.best.Outcome(); outcome.Centroid != nil {
		rows, _ := outcome.Centroid.Centers.Dims()
		params["n_clusters"] = rows
		params["inertia"] = outcome.Centroid.Inertia
	}
	return params
}

// BestValue reports the selected value of the tuned parameter.
func (s *Selector) BestValue() float64 { return s.bestValue }

// BestScore reports the cross-validated silhouette of the selection;
// NaN when every candidate failed.
func (s *Selector) BestScore() float64 { return s.bestScore }

// splitRows separates x into the rows outside and inside [lo, hi).
func splitRows(x *mat.Dense, lo, hi int) (train, test *mat.Dense) {
	n, d := x.Dims()
	train = mat.NewDense(n-(hi-lo), d, nil)
	test = mat.NewDense(hi-lo, d, nil)
	ti := 0
	for i := 0; i < n; i++ {
		if i >= lo && i < hi {
			test.SetRow(i-lo, x.RawRowView(i))
			continue
		}
		train.SetRow(ti, x.RawRowView(i))
		ti++
	}
	return train, test
}

// SqrtNGrid is the cluster-count heuristic for centroid methods: a
// logarithmic scale of integers between 2 and sqrt(samples per fold).
// When that scale is poorer than the fold population, the full integer
// range [2, perFold-1] is used instead, still capped.
func SqrtNGrid(x *mat.Dense, folds int) []float64 {
	n, _ := x.Dims()
	perFold := n / folds
	if perFold < 3 {
		return nil
	}

	lo := math.Log10(2)
	hi := math.Log10(math.Sqrt(float64(perFold)))
	seen := make(map[int]bool)
	var grid []float64
	for i := 0; i < maxGridValues; i++ {
		exp := lo + (hi-lo)*float64(i)/float64(maxGridValues-1)
		v := int(math.Pow(10, exp))
		if v < 2 || v > perFold-1 || seen[v] {
			continue
		}
		seen[v] = true
		grid = append(grid, float64(v))
	}
	sort.Float64s(grid)

	if len(grid) < perFold {
		grid = grid[:0]
		for v := 2; v <= perFold-1 && len(grid) < maxGridValues; v++ {
			grid = append(grid, float64(v))
		}
	}
	return grid
}

// PreferenceGrid is the heuristic for affinity propagation: a linear
// scale of integer preferences between the minimum and the median of
// the negative squared-distance similarity matrix.
func PreferenceGrid(metric string) GridFunc {
	return func(x *mat.Dense, _ int) []float64 {
		dist, err := pairwise.Distances(x, metric)
		if err != nil {
			return nil
		}
		n, _ := dist.Dims()
		sims := make([]float64, 0, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := dist.At(i, j)
				sims = append(sims, -v*v)
			}
		}
		sort.Float64s(sims)
		min := sims[0]
		median := sims[len(sims)/2]

		seen := make(map[int]bool)
		var grid []float64
		for i := 0; i < maxGridValues; i++ {
			v := int(min + (median-min)*float64(i)/float64(maxGridValues-1))
			if seen[v] {
				continue
			}
			seen[v] = true
			grid = append(grid, float64(v))
		}
		sort.Float64s(grid)
		return grid
	}
}

var _ capability.Clusterer = (*Selector)(nil)
