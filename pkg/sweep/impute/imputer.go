// Package impute fills missing entries of a data matrix. Besides the
// usual column statistics it supports a nearest-neighbours strategy
// that borrows values from the most similar complete rows.
package impute

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
)

// Supported replacement strategies.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
	StrategyNearest      = "nearest_neighbors"
)

// maxSweeps bounds the iterative refinement of the nearest-neighbours
// strategy.
const maxSweeps = 100

var ErrUnknownStrategy = errors.New("unknown imputation strategy")

// Imputer replaces entries equal to the configured missing value.
type Imputer struct {
	strategy string
	missing  float64
	log      *zap.Logger

	statistics []float64
}

// New builds an imputer. "nn" is accepted as an alias of
// nearest_neighbors. A nil logger is replaced with a no-op one.
func New(strategy string, missing float64, log *zap.Logger) (*Imputer, error) {
	if strategy == "nn" {
		strategy = StrategyNearest
	}
	switch strategy {
	case StrategyMean, StrategyMedian, StrategyMostFrequent, StrategyNearest:
	default:
		return nil, errors.Wrap(ErrUnknownStrategy, strategy)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Imputer{strategy: strategy, missing: missing, log: log}, nil
}

func (im *Imputer) isMissing(v float64) bool {
	if math.IsNaN(im.missing) {
		return math.IsNaN(v)
	}
	return v == im.missing
}

func (im *Imputer) Fit(x *mat.Dense) error {
	if im.strategy == StrategyNearest {
		// Neighbour lookups happen against the matrix passed to Transform.
		return nil
	}
	_, c := x.Dims()
	im.statistics = make([]float64, c)
	for j := 0; j < c; j++ {
		var present []float64
		col := mat.Col(nil, j, x)
		for _, v := range col {
			if !im.isMissing(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			im.statistics[j] = 0
			continue
		}
		switch im.strategy {
		case StrategyMean:
			im.statistics[j] = stat.Mean(present, nil)
		case StrategyMedian:
			sort.Float64s(present)
			im.statistics[j] = stat.Quantile(0.5, stat.Empirical, present, nil)
		case StrategyMostFrequent:
			im.statistics[j] = mode(present)
		}
	}
	return nil
}

func (im *Imputer) Transform(x *mat.Dense) (*mat.Dense, error) {
	if im.strategy == StrategyNearest {
		return im.nearestTransform(x)
	}
	if im.statistics == nil {
		return nil, errors.New("imputer must be fitted first")
	}
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			if im.isMissing(v) {
				v = im.statistics[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// nearestTransform drops rows with no observed value, then repeatedly
// fills each incomplete row from its nearest complete-on-the-observed-
// columns rows, growing the neighbourhood with the row index. Sweeps
// stop once no missing entry is left or after maxSweeps rounds; a
// residual hole is logged, never fatal.
func (im *Imputer) nearestTransform(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()

	var keep []int
	for i := 0; i < r; i++ {
		allMissing := true
		for j := 0; j < c; j++ {
			if !im.isMissing(x.At(i, j)) {
				allMissing = false
				break
			}
		}
		if !allMissing {
			keep = append(keep, i)
		}
	}

	out := mat.NewDense(len(keep), c, nil)
	missing := make([][]bool, len(keep))
	for i, src := range keep {
		missing[i] = make([]bool, c)
		for j := 0; j < c; j++ {
			v := x.At(src, j)
			missing[i][j] = im.isMissing(v)
			if missing[i][j] {
				v = math.NaN()
			}
			out.Set(i, j, v)
		}
	}

	for sweep := 0; sweep < maxSweeps; sweep++ {
		holes := false
		for i := range missing {
			if !anyTrue(missing[i]) {
				continue
			}
			if !im.fillRow(out, missing, i) {
				holes = true
			}
		}
		for i := range missing {
			for j := range missing[i] {
				if missing[i][j] && !math.IsNaN(out.At(i, j)) {
					missing[i][j] = false
				}
			}
		}
		if !holes {
			break
		}
	}

	for i := range missing {
		if anyTrue(missing[i]) {
			im.log.Info("data imputing partially failed")
			break
		}
	}
	return out, nil
}

// fillRow estimates the missing entries of row i as the average of its
// nearest neighbours among the rows observed on row i's columns. The
// neighbourhood size grows with the row index so later rows search
// wider. Returns false when no donor value was found.
func (im *Imputer) fillRow(x *mat.Dense, missing [][]bool, i int) bool {
	_, c := x.Dims()

	var observed []int
	for j := 0; j < c; j++ {
		if !missing[i][j] {
			observed = append(observed, j)
		}
	}

	var donors []int
	for k := range missing {
		if k == i {
			continue
		}
		ok := true
		for _, j := range observed {
			if math.IsNaN(x.At(k, j)) {
				ok = false
				break
			}
		}
		if ok {
			donors = append(donors, k)
		}
	}
	if len(donors) == 0 {
		return false
	}

	sort.Slice(donors, func(a, b int) bool {
		return im.rowDistance(x, i, donors[a], observed) < im.rowDistance(x, i, donors[b], observed)
	})
	n := 6 + i
	if n > len(donors) {
		n = len(donors)
	}
	donors = donors[:n]

	filled := true
	for j := 0; j < c; j++ {
		if !missing[i][j] {
			continue
		}
		sum, cnt := 0.0, 0
		for _, k := range donors {
			if v := x.At(k, j); !math.IsNaN(v) {
				sum += v
				cnt++
			}
		}
		if cnt == 0 {
			filled = false
			continue
		}
		x.Set(i, j, sum/float64(cnt))
	}
	return filled
}

func (im *Imputer) rowDistance(x *mat.Dense, a, b int, cols []int) float64 {
	var d float64
	for _, j := range cols {
		diff := x.At(a, j) - x.At(b, j)
		d += diff * diff
	}
	return d
}

func (im *Imputer) Params() map[string]interface{} {
	return map[string]interface{}{"strategy": im.strategy, "missing_values": im.missing}
}

func mode(values []float64) float64 {
	counts := make(map[float64]int)
	best, bestCount := values[0], 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func anyTrue(row []bool) bool {
	for _, v := range row {
		if v {
			return true
		}
	}
	return false
}

var _ capability.Transformer = (*Imputer)(nil)
