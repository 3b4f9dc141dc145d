package sweep

import (
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Execution modes.
const (
	ModeSequential  = "sequential"
	ModePool        = "pool"
	ModeCoordinator = "coordinator"
)

// Config is the declarative description of a batch run. Stage options
// are ordered lists rather than maps so two runs of the same file
// always expand pipelines in the same order.
type Config struct {
	ExpTag         string `yaml:"exp_tag"`
	OutputRoot     string `yaml:"output_root"`
	Verbose        bool   `yaml:"verbose"`
	UseCompression bool   `yaml:"use_compression"`

	Execution ExecutionConfig `yaml:"execution"`

	DataFile    string `yaml:"data_file"`
	LabelColumn *int   `yaml:"label_column"`

	Impute     ImputeConfig  `yaml:"impute"`
	Preprocess []StageConfig `yaml:"preprocess"`
	DimRed     []StageConfig `yaml:"dimred"`
	Cluster    []StageConfig `yaml:"cluster"`
}

// ExecutionConfig selects the distribution strategy for the run.
type ExecutionConfig struct {
	// Mode is sequential, pool or coordinator.
	Mode string `yaml:"mode"`
	// Workers is the pool size or the worker count of the coordinator
	// topology.
	Workers int `yaml:"workers"`
	// Requeue re-submits work units lost to a crashed worker.
	Requeue bool `yaml:"requeue"`
}

// ImputeConfig is the imputation stage of the configuration.
type ImputeConfig struct {
	On bool `yaml:"on"`
	// Missing is the sentinel marking a missing entry; "NaN" (the
	// default) or a number.
	Missing string `yaml:"missing"`
	// Replacement lists the strategies to sweep over.
	Replacement []string `yaml:"replacement"`
}

// LabelCol returns the label column index, or -1 when the dataset
// carries no label column.
func (c *Config) LabelCol() int {
	if c.LabelColumn == nil {
		return -1
	}
	return *c.LabelColumn
}

// MissingValue parses the missing-entry sentinel.
func (c ImputeConfig) MissingValue() float64 {
	if c.Missing == "" || c.Missing == "NaN" || c.Missing == "nan" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(c.Missing, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// StageConfig is one algorithm option of a stage: a name, an on/off
// flag and optional parameters. Variants multiply a dimensionality-
// reduction option into one entry per value (e.g. one kernel PCA per
// kernel). Parameter values may be scalars or lists of candidates;
// lists expand into one option per combination.
type StageConfig struct {
	Name     string                 `yaml:"name"`
	On       bool                   `yaml:"on"`
	Variants []string               `yaml:"variants"`
	Params   map[string]interface{} `yaml:"params"`
}

// LoadConfig reads and decodes a YAML run configuration, applying the
// documented defaults.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to decode config %s", path)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills the blanks of a decoded configuration.
func (c *Config) ApplyDefaults() {
	if c.ExpTag == "" {
		c.ExpTag = "debug"
	}
	if c.OutputRoot == "" {
		c.OutputRoot = "results"
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = ModeSequential
	}
	if c.Execution.Workers < 1 {
		c.Execution.Workers = 1
	}
	if len(c.Preprocess) == 0 {
		c.Preprocess = []StageConfig{{Name: "None", On: true}}
	}
	if len(c.DimRed) == 0 {
		c.DimRed = []StageConfig{{Name: "None", On: true}}
	}
}
