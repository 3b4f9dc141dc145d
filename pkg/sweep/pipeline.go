package sweep

import (
	"strconv"
	"strings"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
)

// StageKind names the level of a pipeline stage.
type StageKind string

const (
	StageImpute     StageKind = "imputing"
	StagePreprocess StageKind = "preprocessing"
	StageDimRed     StageKind = "dimred"
	StageCluster    StageKind = "clustering"
)

// Option is one parsed stage option: a human-readable label plus a
// factory minting a fresh capability instance. Every pipeline gets its
// own instance so fitted state is never shared across evaluations.
type Option struct {
	Label string
	Kind  StageKind
	New   func() (capability.Capability, error)
}

// Stage is one instantiated step of a pipeline. The factory is kept
// alongside the instance so the evaluator can mint the secondary
// two-dimensional twin used for visualisation.
type Stage struct {
	Label      string
	Kind       StageKind
	Capability capability.Capability
	New        func() (capability.Capability, error)
}

// Pipeline is an ordered chain of stages applied to the dataset. The
// index is the dispatch identity; the stage labels are the
// human-readable one.
type Pipeline struct {
	Index  int
	Stages []Stage
}

// ID returns the synthetic pipeline identifier used to key results.
func (p *Pipeline) ID() string { return "pipe" + strconv.Itoa(p.Index) }

// String renders the stage labels, for logs.
func (p *Pipeline) String() string {
	labels := make([]string, len(p.Stages))
	for i, stage := range p.Stages {
		labels[i] = stage.Label
	}
	return strings.Join(labels, " -> ")
}
