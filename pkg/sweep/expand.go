package sweep

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxPipelines caps the expansion so a careless configuration cannot
// schedule an unbounded batch.
const MaxPipelines = 100

var ErrNoPipelines = errors.New("configuration expands to no pipelines")

// Expand takes the modified cartesian product of the parsed stage
// options and returns the ordered candidate pipelines. The imputing
// list may be empty, in which case the stage is skipped; an empty
// preprocessing, dimensionality-reduction or clustering list leaves
// nothing to run and is an error. Expansion is imputation-major:
// pipelines sharing an imputation option are contiguous, then
// preprocessing, then dimensionality reduction.
func Expand(log *zap.Logger, imputing, preproc, dr, clustering []Option) ([]*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(preproc) == 0 || len(dr) == 0 || len(clustering) == 0 {
		return nil, ErrNoPipelines
	}

	total := len(preproc) * len(dr) * len(clustering)
	if len(imputing) > 0 {
		total *= len(imputing)
	}
	if total > MaxPipelines {
		log.Warn("expansion exceeds the pipeline cap; keeping the first ones",
			zap.Int("expanded", total), zap.Int("cap", MaxPipelines))
	}

	chains := [][]Option{preproc, dr, clustering}
	if len(imputing) > 0 {
		chains = append([][]Option{imputing}, chains...)
	}

	var pipelines []*Pipeline
	combo := make([]Option, len(chains))
	var walk func(level int) error
	walk = func(level int) error {
		if level == len(chains) {
			if len(pipelines) == MaxPipelines {
				// Every combination is still logged; the ones over the cap
				// are named without being instantiated.
				log.Info("skipping pipeline over the cap", zap.String("steps", comboSteps(combo)))
				return nil
			}
			pipe, err := instantiate(len(pipelines), combo)
			if err != nil {
				return err
			}
			log.Info("created pipeline", zap.String("id", pipe.ID()), zap.String("steps", pipe.String()))
			pipelines = append(pipelines, pipe)
			return nil
		}
		for _, opt := range chains[level] {
			combo[level] = opt
			if err := walk(level + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}

	log.Info("pipeline expansion done", zap.Int("pipelines", len(pipelines)))
	return pipelines, nil
}

// instantiate mints a fresh capability per stage so no state is shared
// between pipelines.
func instantiate(index int, combo []Option) (*Pipeline, error) {
	stages := make([]Stage, len(combo))
	for i, opt := range combo {
		cap, err := opt.New()
		if err != nil {
			return nil, errors.Wrapf(err, "unable to instantiate stage %s", opt.Label)
		}
		stages[i] = Stage{Label: opt.Label, Kind: opt.Kind, Capability: cap, New: opt.New}
	}
	return &Pipeline{Index: index, Stages: stages}, nil
}

func comboSteps(combo []Option) string {
	labels := make([]string, len(combo))
	for i, opt := range combo {
		labels[i] = opt.Label
	}
	return strings.Join(labels, " -> ")
}

// expandParams turns a parameter map whose values may be candidate
// lists into the cartesian product of concrete parameter maps. Keys are
// walked in sorted order so the expansion is deterministic.
func expandParams(params map[string]interface{}) []map[string]interface{} {
	keys := sortedKeys(params)
	combos := []map[string]interface{}{{}}
	for _, key := range keys {
		values := ensureList(params[key])
		next := make([]map[string]interface{}, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, value := range values {
				grown := make(map[string]interface{}, len(combo)+1)
				for k, v := range combo {
					grown[k] = v
				}
				grown[key] = value
				next = append(next, grown)
			}
		}
		combos = next
	}
	return combos
}

// validClusterParams rejects combinations the algorithms define away:
// ward linkage only supports the euclidean affinity.
func validClusterParams(params map[string]interface{}) bool {
	affinity := stringParam(params, "affinity", "")
	linkage := stringParam(params, "linkage", "")
	if linkage == "ward" && (affinity == "manhattan" || affinity == "precomputed") {
		return false
	}
	return true
}

func ensureList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return []interface{}{v}
}

func sortedKeys(params map[string]interface{}) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
