// Package dataset wraps the immutable input of a batch run: the data
// matrix plus optional labels, sample index and feature names.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is the read-only input shared by every pipeline evaluation.
// No pipeline stage may mutate X; stages operate on their own copies.
type Dataset struct {
	X        *mat.Dense
	Y        []int
	Index    []string
	Features []string
}

// New builds a dataset around x. Labels, index and feature names are
// optional; a missing index defaults to the row number.
func New(x *mat.Dense, y []int, index, features []string) *Dataset {
	r, _ := x.Dims()
	if index == nil {
		index = make([]string, r)
		for i := range index {
			index[i] = strconv.Itoa(i)
		}
	}
	return &Dataset{X: x, Y: y, Index: index, Features: features}
}

// Samples returns the number of rows in the data matrix.
func (d *Dataset) Samples() int {
	r, _ := d.X.Dims()
	return r
}

// FromCSV loads a numeric matrix from a CSV file. When labelColumn is
// non-negative that column is parsed as an integer class label and
// excluded from the matrix. The first row is treated as a header and
// used for feature names.
func FromCSV(path string, labelColumn int) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}
	if len(records) < 2 {
		return nil, errors.Errorf("%s holds no data rows", path)
	}

	var features []string
	for i, name := range records[0] {
		if i == labelColumn {
			continue
		}
		features = append(features, name)
	}

	var (
		values []float64
		labels []int
	)
	cols := 0
	for _, record := range records[1:] {
		row := make([]float64, 0, len(record))
		for i, field := range record {
			if i == labelColumn {
				label, err := strconv.Atoi(field)
				if err != nil {
					return nil, errors.Wrapf(err, "unable to parse label %q", field)
				}
				labels = append(labels, label)
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to parse value %q", field)
			}
			row = append(row, v)
		}
		if cols == 0 {
			cols = len(row)
		} else if len(row) != cols {
			return nil, errors.Errorf("ragged row: got %d fields, want %d", len(row), cols)
		}
		values = append(values, row...)
	}

	x := mat.NewDense(len(values)/cols, cols, values)
	return New(x, labels, nil, features), nil
}

// Blobs generates k isotropic gaussian blobs of n samples in d
// dimensions. Deterministic for a given seed, which makes it suitable
// for tests and the demo runner.
func Blobs(n, d, k int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = make([]float64, d)
		for j := range centers[c] {
			centers[c][j] = rng.Float64()*20 - 10
		}
	}

	x := mat.NewDense(n, d, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		c := i % k
		y[i] = c
		for j := 0; j < d; j++ {
			x.Set(i, j, centers[c][j]+rng.NormFloat64())
		}
	}

	features := make([]string, d)
	for j := range features {
		features[j] = fmt.Sprintf("feat%d", j)
	}
	return New(x, y, nil, features)
}
