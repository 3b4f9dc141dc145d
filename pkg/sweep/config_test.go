package sweep

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
exp_tag: trial
use_compression: true
execution:
  mode: coordinator
  workers: 4
  requeue: true
data_file: data.csv
label_column: 0
impute:
  on: true
  missing: "-99"
  replacement: [mean, nearest_neighbors]
preprocess:
  - name: Standardize
    on: true
cluster:
  - name: KMeans
    on: true
    params:
      n_clusters: [3, 4]
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "trial", cfg.ExpTag)
	assert.Equal(t, "results", cfg.OutputRoot)
	assert.True(t, cfg.UseCompression)
	assert.Equal(t, ModeCoordinator, cfg.Execution.Mode)
	assert.Equal(t, 4, cfg.Execution.Workers)
	assert.True(t, cfg.Execution.Requeue)
	assert.Equal(t, 0, cfg.LabelCol())
	assert.Equal(t, -99.0, cfg.Impute.MissingValue())
	assert.Equal(t, []string{"mean", "nearest_neighbors"}, cfg.Impute.Replacement)

	// An absent dimred section defaults to a single pass-through option.
	require.Len(t, cfg.DimRed, 1)
	assert.Equal(t, "None", cfg.DimRed[0].Name)
	assert.True(t, cfg.DimRed[0].On)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "debug", cfg.ExpTag)
	assert.Equal(t, ModeSequential, cfg.Execution.Mode)
	assert.Equal(t, 1, cfg.Execution.Workers)
	assert.Equal(t, -1, cfg.LabelCol())
	assert.True(t, math.IsNaN(cfg.Impute.MissingValue()))
}

func TestMissingValueParsing(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		missing string
		wantNaN bool
		want    float64
	}{
		"empty":       {missing: "", wantNaN: true},
		"nan":         {missing: "NaN", wantNaN: true},
		"number":      {missing: "0", want: 0},
		"negative":    {missing: "-1.5", want: -1.5},
		"unparseable": {missing: "whatever", wantNaN: true},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := ImputeConfig{Missing: tc.missing}.MissingValue()
			if tc.wantNaN {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
