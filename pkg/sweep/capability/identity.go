package capability

import (
	"gonum.org/v1/gonum/mat"
)

// Identity is a stage that does nothing. It exists so that unknown or
// disabled stage options still produce a runnable pipeline entry; the
// data passes through untouched.
type Identity struct{}

// NewIdentity returns an identity capability.
func NewIdentity() *Identity { return &Identity{} }

func (*Identity) Fit(*mat.Dense) error { return nil }

func (*Identity) Transform(x *mat.Dense) (*mat.Dense, error) { return x, nil }

// Predict assigns every sample to a single cluster. A pipeline whose
// clustering stage is the identity is valid but carries no grouping
// information.
func (*Identity) Predict(x *mat.Dense) ([]int, error) {
	r, _ := x.Dims()
	return make([]int, r), nil
}

func (*Identity) Outcome() Outcome { return Outcome{} }

func (*Identity) Params() map[string]interface{} { return map[string]interface{}{} }

var (
	_ Transformer = (*Identity)(nil)
	_ Clusterer   = (*Identity)(nil)
)
