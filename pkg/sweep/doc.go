// Package sweep expands a declarative run configuration into the
// combinatorial set of candidate processing pipelines.
//
// A pipeline chains up to four stages: imputation (optional),
// preprocessing, dimensionality reduction and clustering. Each stage of
// the configuration lists algorithm options with an on/off flag and
// parameter variants; the expander takes the modified cartesian product
// across stages, filters combinations known to be invalid, caps the
// result and hands the ordered pipeline list to the distributor for
// evaluation.
//
// Stage options are parsed permissively: an unknown algorithm name
// degrades to an identity step with a warning instead of failing the
// batch, because a skipped stage still yields a usable pipeline.
package sweep
