package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
)

// Silhouette returns the mean silhouette coefficient of a labelling,
// in [-1, 1]. It returns NaN instead of failing when the labelling has
// fewer than 2 or more than n-1 distinct labels; the grid search treats
// NaN as strictly worse than any real score.
func Silhouette(x *mat.Dense, labels []int) float64 {
	n, _ := x.Dims()
	if len(labels) != n {
		return math.NaN()
	}

	clusters := make(map[int][]int)
	for i, label := range labels {
		clusters[label] = append(clusters[label], i)
	}
	if len(clusters) < 2 || len(clusters) > n-1 {
		return math.NaN()
	}

	dist, err := pairwise.Distances(x, pairwise.Euclidean)
	if err != nil {
		return math.NaN()
	}

	var total float64
	for i := 0; i < n; i++ {
		own := clusters[labels[i]]
		if len(own) == 1 {
			// Singleton clusters contribute zero by convention.
			continue
		}
		var a float64
		for _, j := range own {
			if j != i {
				a += dist.At(i, j)
			}
		}
		a /= float64(len(own) - 1)

		b := math.Inf(1)
		for label, rows := range clusters {
			if label == labels[i] {
				continue
			}
			var mean float64
			for _, j := range rows {
				mean += dist.At(i, j)
			}
			mean /= float64(len(rows))
			if mean < b {
				b = mean
			}
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n)
}
