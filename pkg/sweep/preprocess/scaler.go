// Package preprocess holds the fit/transform capabilities of the
// preprocessing stage: recentring, standardisation, row normalisation
// and min-max scaling.
package preprocess

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
)

var ErrNotFitted = errors.New("scaler must be fitted first")

// Scaler recentres columns and optionally divides by the column
// standard deviation. withStd false gives plain recentring.
type Scaler struct {
	withStd bool
	mean    []float64
	std     []float64
}

// NewRecenter returns a scaler that only removes the column mean.
func NewRecenter() *Scaler { return &Scaler{} }

// NewStandardize returns a scaler that removes the column mean and
// scales to unit variance.
func NewStandardize() *Scaler { return &Scaler{withStd: true} }

func (s *Scaler) Fit(x *mat.Dense) error {
	_, c := x.Dims()
	s.mean = make([]float64, c)
	s.std = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		s.mean[j], s.std[j] = stat.MeanStdDev(col, nil)
	}
	return nil
}

func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	if s.mean == nil {
		return nil, ErrNotFitted
	}
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j) - s.mean[j]
			// A constant column stays centred rather than dividing by zero.
			if s.withStd && s.std[j] > 0 {
				v /= s.std[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func (s *Scaler) Params() map[string]interface{} {
	return map[string]interface{}{"with_mean": true, "with_std": s.withStd}
}

// Normalizer scales every sample row to unit norm.
type Normalizer struct {
	norm string
}

// NewNormalize returns a row normaliser. Supported norms are "l1", "l2"
// and "max"; anything else falls back to "l2".
func NewNormalize(norm string) *Normalizer {
	switch norm {
	case "l1", "l2", "max":
	default:
		norm = "l2"
	}
	return &Normalizer{norm: norm}
}

func (n *Normalizer) Fit(*mat.Dense) error { return nil }

func (n *Normalizer) Transform(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		var scale float64
		switch n.norm {
		case "l1":
			for _, v := range row {
				scale += math.Abs(v)
			}
		case "max":
			for _, v := range row {
				scale = math.Max(scale, math.Abs(v))
			}
		default:
			for _, v := range row {
				scale += v * v
			}
			scale = math.Sqrt(scale)
		}
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			if scale > 0 {
				v /= scale
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func (n *Normalizer) Params() map[string]interface{} {
	return map[string]interface{}{"norm": n.norm}
}

// MinMax rescales every column to the [min, max] feature range.
type MinMax struct {
	min, max float64
	colMin   []float64
	colMax   []float64
}

// NewMinMax returns a scaler mapping each column onto [min, max].
func NewMinMax(min, max float64) *MinMax { return &MinMax{min: min, max: max} }

func (m *MinMax) Fit(x *mat.Dense) error {
	_, c := x.Dims()
	m.colMin = make([]float64, c)
	m.colMax = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		m.colMin[j] = col[0]
		m.colMax[j] = col[0]
		for _, v := range col[1:] {
			m.colMin[j] = math.Min(m.colMin[j], v)
			m.colMax[j] = math.Max(m.colMax[j], v)
		}
	}
	return nil
}

func (m *MinMax) Transform(x *mat.Dense) (*mat.Dense, error) {
	if m.colMin == nil {
		return nil, ErrNotFitted
	}
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	span := m.max - m.min
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			if d := m.colMax[j] - m.colMin[j]; d > 0 {
				v = (v - m.colMin[j]) / d
			} else {
				v = 0
			}
			out.Set(i, j, m.min+v*span)
		}
	}
	return out, nil
}

func (m *MinMax) Params() map[string]interface{} {
	return map[string]interface{}{"feature_range": []float64{m.min, m.max}}
}

var (
	_ capability.Transformer = (*Scaler)(nil)
	_ capability.Transformer = (*Normalizer)(nil)
	_ capability.Transformer = (*MinMax)(nil)
)
