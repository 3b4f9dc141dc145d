package sweep

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/preprocess"
)

func identityOptions(kind StageKind, n int) []Option {
	opts := make([]Option, n)
	for i := range opts {
		opts[i] = Option{
			Label: fmt.Sprintf("%s%d", kind, i),
			Kind:  kind,
			New:   identityFactory,
		}
	}
	return opts
}

func TestExpandCounts(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		imputing, preproc, dimred, clustering int
		want                                  int
	}{
		"single chain":        {0, 1, 1, 1, 1},
		"no imputation":       {0, 2, 3, 4, 24},
		"with imputation":     {2, 2, 2, 2, 16},
		"capped at a hundred": {0, 5, 5, 5, 100},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pipelines, err := Expand(zap.NewNop(),
				identityOptions(StageImpute, tc.imputing),
				identityOptions(StagePreprocess, tc.preproc),
				identityOptions(StageDimRed, tc.dimred),
				identityOptions(StageCluster, tc.clustering),
			)
			require.NoError(t, err)
			assert.Len(t, pipelines, tc.want)
		})
	}
}

func TestExpandLogsOverCapCombinations(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	pipelines, err := Expand(zap.New(core),
		nil,
		identityOptions(StagePreprocess, 5),
		identityOptions(StageDimRed, 5),
		identityOptions(StageCluster, 5),
	)
	require.NoError(t, err)
	require.Len(t, pipelines, MaxPipelines)

	// 125 combinations: the first 100 become pipelines, the rest are
	// still named in the log.
	assert.Equal(t, MaxPipelines, logs.FilterMessage("created pipeline").Len())
	skipped := logs.FilterMessage("skipping pipeline over the cap")
	require.Equal(t, 25, skipped.Len())
	assert.Contains(t, skipped.All()[0].ContextMap()["steps"], " -> ")
}

func TestExpandEmptyStage(t *testing.T) {
	t.Parallel()

	_, err := Expand(zap.NewNop(),
		nil,
		identityOptions(StagePreprocess, 1),
		identityOptions(StageDimRed, 1),
		nil,
	)
	assert.ErrorIs(t, err, ErrNoPipelines)
}

func TestExpandDeterministicOrder(t *testing.T) {
	t.Parallel()

	expand := func() []string {
		pipelines, err := Expand(zap.NewNop(),
			identityOptions(StageImpute, 2),
			identityOptions(StagePreprocess, 2),
			identityOptions(StageDimRed, 1),
			identityOptions(StageCluster, 2),
		)
		require.NoError(t, err)
		chains := make([]string, len(pipelines))
		for i, pipe := range pipelines {
			chains[i] = pipe.ID() + ": " + pipe.String()
		}
		return chains
	}

	first := expand()
	assert.Equal(t, first, expand())
	assert.Equal(t, "pipe0: imputing0 -> preprocessing0 -> dimred0 -> clustering0", first[0])
	// Imputation-major: all pipelines of the first imputation option come
	// before any pipeline of the second.
	assert.Equal(t, "pipe3: imputing0 -> preprocessing1 -> dimred0 -> clustering1", first[3])
	assert.Equal(t, "pipe4: imputing1 -> preprocessing0 -> dimred0 -> clustering0", first[4])
}

func TestExpandFreshInstances(t *testing.T) {
	t.Parallel()

	scale := Option{
		Label: "Standardize",
		Kind:  StagePreprocess,
		New:   func() (capability.Capability, error) { return preprocess.NewStandardize(), nil },
	}
	pipelines, err := Expand(zap.NewNop(),
		nil,
		[]Option{scale},
		identityOptions(StageDimRed, 1),
		identityOptions(StageCluster, 2),
	)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.NotSame(t, pipelines[0].Stages[0].Capability, pipelines[1].Stages[0].Capability)
}

func TestExpandParams(t *testing.T) {
	t.Parallel()

	combos := expandParams(map[string]interface{}{
		"n_clusters": []interface{}{3, 4},
		"linkage":    []interface{}{"ward", "complete"},
		"affinity":   "euclidean",
	})
	require.Len(t, combos, 4)
	// Keys expand in sorted order, so the affinity/linkage pairs cycle
	// fastest on the last sorted key.
	assert.Equal(t, map[string]interface{}{"affinity": "euclidean", "linkage": "ward", "n_clusters": 3}, combos[0])
	assert.Equal(t, map[string]interface{}{"affinity": "euclidean", "linkage": "ward", "n_clusters": 4}, combos[1])
}

func TestValidClusterParams(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		params map[string]interface{}
		want   bool
	}{
		"ward euclidean":       {map[string]interface{}{"linkage": "ward", "affinity": "euclidean"}, true},
		"ward manhattan":       {map[string]interface{}{"linkage": "ward", "affinity": "manhattan"}, false},
		"ward precomputed":     {map[string]interface{}{"linkage": "ward", "affinity": "precomputed"}, false},
		"complete manhattan":   {map[string]interface{}{"linkage": "complete", "affinity": "manhattan"}, true},
		"no linkage specified": {map[string]interface{}{"affinity": "manhattan"}, true},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, validClusterParams(tc.params))
		})
	}
}

func TestParseStepsFiltersAndFallsBack(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Preprocess: []StageConfig{
			{Name: "Standardize", On: true},
			{Name: "Recenter", On: false},
			{Name: "NoSuchScaler", On: true},
		},
		DimRed: []StageConfig{
			{Name: "KernelPCA", On: true, Variants: []string{"linear", "rbf"}},
		},
		Cluster: []StageConfig{
			{Name: "Hierarchical", On: true, Params: map[string]interface{}{
				"n_clusters": 3,
				"affinity":   []interface{}{"euclidean", "manhattan"},
				"linkage":    []interface{}{"ward", "complete"},
			}},
		},
	}

	_, preproc, dr, clustering := NewParser(zap.NewNop()).ParseSteps(cfg)

	require.Len(t, preproc, 2)
	assert.Equal(t, "Standardize", preproc[0].Label)
	unknown, err := preproc[1].New()
	require.NoError(t, err)
	assert.IsType(t, &capability.Identity{}, unknown)

	require.Len(t, dr, 2)
	assert.Equal(t, "KernelPCA_linear", dr[0].Label)
	assert.Equal(t, "KernelPCA_rbf", dr[1].Label)

	// ward+manhattan is dropped, leaving three combinations.
	assert.Len(t, clustering, 3)
}

func TestParseStepsAutoRouting(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Preprocess: []StageConfig{{Name: "None", On: true}},
		DimRed:     []StageConfig{{Name: "None", On: true}},
		Cluster: []StageConfig{
			{Name: "KMeans", On: true, Params: map[string]interface{}{"n_clusters": "auto"}},
			{Name: "AP", On: true, Params: map[string]interface{}{"preference": "auto"}},
			{Name: "MS", On: true, Params: map[string]interface{}{"bandwidth": "auto"}},
		},
	}

	_, _, _, clustering := NewParser(zap.NewNop()).ParseSteps(cfg)
	require.Len(t, clustering, 3)

	assert.Contains(t, clustering[0].Label, "_auto")
	kmeans, err := clustering[0].New()
	require.NoError(t, err)
	assert.NotNil(t, kmeans)

	ap, err := clustering[1].New()
	require.NoError(t, err)
	assert.NotNil(t, ap)
}
