package capability

import (
	"gonum.org/v1/gonum/mat"
)

// Capability is the surface shared by every pipeline stage: it can be
// fitted on a data matrix and reports the parameters it was built with.
type Capability interface {
	Fit(x *mat.Dense) error
	Params() map[string]interface{}
}

// Transformer is a fit/transform capability (imputation, preprocessing,
// dimensionality reduction).
type Transformer interface {
	Capability
	Transform(x *mat.Dense) (*mat.Dense, error)
}

// Clusterer is a fit/predict capability. Predict returns one label per
// row of x. Outcome exposes the algorithm-family specific result of the
// last Fit; callers match on the populated variant instead of probing
// for attributes.
type Clusterer interface {
	Capability
	Predict(x *mat.Dense) ([]int, error)
	Outcome() Outcome
}

// Outcome carries the family-specific result of a clustering fit. A
// fitted clusterer populates the variants that apply to it (affinity
// propagation fills both Centroid and Affinity); all are nil before
// Fit.
type Outcome struct {
	Centroid     *CentroidOutcome
	Affinity     *AffinityOutcome
	Hierarchical *HierarchicalOutcome
}

// CentroidOutcome is produced by centroid methods (k-means, mean shift,
// affinity propagation exemplars collapsed to centres).
type CentroidOutcome struct {
	// Centers has one row per cluster.
	Centers *mat.Dense
	// Inertia is the within-cluster sum of squared distances.
	Inertia float64
}

// AffinityOutcome is produced by similarity-matrix methods.
type AffinityOutcome struct {
	// Matrix is the pairwise affinity used by the fit.
	Matrix *mat.Dense
	// Exemplars holds the row indices chosen as cluster exemplars, when
	// the algorithm selects exemplars.
	Exemplars []int
}

// HierarchicalOutcome is produced by agglomerative methods.
type HierarchicalOutcome struct {
	// Children records the two merged nodes per agglomeration step,
	// following the usual convention: values < n are leaves, values >= n
	// refer to the node created at step value-n.
	Children [][2]int
	// Distances holds the merge distance per step.
	Distances []float64
}
