package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestStandardize(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(4, 2, []float64{
		1, 100,
		2, 200,
		3, 300,
		4, 400,
	})

	s := NewStandardize()
	require.NoError(t, s.Fit(x))
	out, err := s.Transform(x)
	require.NoError(t, err)

	for j := 0; j < 2; j++ {
		col := mat.Col(nil, j, out)
		mean, std := stat.MeanStdDev(col, nil)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, std, 1e-12)
	}
}

func TestStandardizeConstantColumn(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 1, []float64{5, 5, 5})
	s := NewStandardize()
	require.NoError(t, s.Fit(x))
	out, err := s.Transform(x)
	require.NoError(t, err)

	// A constant column is centred, never divided by a zero deviation.
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, out.At(i, 0))
	}
}

func TestRecenterKeepsSpread(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 1, []float64{1, 2, 6})
	s := NewRecenter()
	require.NoError(t, s.Fit(x))
	out, err := s.Transform(x)
	require.NoError(t, err)

	assert.InDelta(t, -2, out.At(0, 0), 1e-12)
	assert.InDelta(t, -1, out.At(1, 0), 1e-12)
	assert.InDelta(t, 3, out.At(2, 0), 1e-12)
}

func TestScalerUnfitted(t *testing.T) {
	t.Parallel()

	_, err := NewStandardize().Transform(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(2, 2, []float64{3, 4, 0, 0})

	tcs := map[string]struct {
		norm string
		want []float64
	}{
		"l2":       {norm: "l2", want: []float64{0.6, 0.8}},
		"l1":       {norm: "l1", want: []float64{3.0 / 7, 4.0 / 7}},
		"max":      {norm: "max", want: []float64{0.75, 1}},
		"fallback": {norm: "euclidean", want: []float64{0.6, 0.8}},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			n := NewNormalize(tc.norm)
			require.NoError(t, n.Fit(x))
			out, err := n.Transform(x)
			require.NoError(t, err)

			assert.InDelta(t, tc.want[0], out.At(0, 0), 1e-12)
			assert.InDelta(t, tc.want[1], out.At(0, 1), 1e-12)
			// The all-zero row passes through untouched.
			assert.Equal(t, 0.0, out.At(1, 0))
			assert.Equal(t, 0.0, out.At(1, 1))
		})
	}
}

func TestMinMax(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 2, []float64{
		0, 10,
		5, 10,
		10, 10,
	})

	m := NewMinMax(-1, 1)
	require.NoError(t, m.Fit(x))
	out, err := m.Transform(x)
	require.NoError(t, err)

	assert.InDelta(t, -1, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0, out.At(1, 0), 1e-12)
	assert.InDelta(t, 1, out.At(2, 0), 1e-12)
	// A constant column maps onto the lower bound.
	for i := 0; i < 3; i++ {
		assert.InDelta(t, -1, out.At(i, 1), 1e-12)
	}

	assert.False(t, math.IsNaN(mat.Sum(out)))
}
