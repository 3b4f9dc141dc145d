package distribute

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-sweep/pkg/sweep/dataset"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

// File suffixes of the persisted artifacts. The compressed form gets
// its own suffix so a reader can tell the encoding from the name.
const (
	SuffixPlain      = ".gob"
	SuffixCompressed = ".gob.gz"
)

// StageRecord is the serialisable projection of one stage result.
// Fitted models are not persisted; their parameters and outcomes are.
type StageRecord struct {
	Label  string
	Kind   string
	Params map[string]string

	Input  *mat.Dense
	Output *mat.Dense
	Labels []int

	Centers   *mat.Dense
	Inertia   float64
	Affinity  *mat.Dense
	Exemplars []int
	Children  [][2]int
	Distances []float64

	Failed bool
	Err    string
}

// RunRecord is the serialisable projection of one pipeline evaluation.
type RunRecord struct {
	PipelineID string
	Steps      string
	Stages     []StageRecord
	Elapsed    time.Duration
}

// DataRecord is the companion artifact carrying the input the batch ran
// on, so results stay interpretable without the original file.
type DataRecord struct {
	X        *mat.Dense
	Y        []int
	Index    []string
	Features []string
}

// Record flattens an evaluation result into its persisted form.
func Record(r *evaluate.Result) *RunRecord {
	record := &RunRecord{
		PipelineID: r.PipelineID,
		Steps:      r.Steps,
		Elapsed:    r.Elapsed,
		Stages:     make([]StageRecord, len(r.Stages)),
	}
	for i := range r.Stages {
		sr := &r.Stages[i]
		stage := StageRecord{
			Label:  sr.Label,
			Kind:   string(sr.Kind),
			Input:  sr.Input,
			Output: sr.Output,
			Labels: sr.Labels,
			Failed: sr.Failed,
			Err:    sr.Err,
		}
		if len(sr.Params) > 0 {
			stage.Params = make(map[string]string, len(sr.Params))
			for k, v := range sr.Params {
				stage.Params[k] = fmt.Sprintf("%v", v)
			}
		}
		if c := sr.Outcome.Centroid; c != nil {
			stage.Centers = c.Centers
			stage.Inertia = c.Inertia
		}
		if a := sr.Outcome.Affinity; a != nil {
			stage.Affinity = a.Matrix
			stage.Exemplars = a.Exemplars
		}
		if h := sr.Outcome.Hierarchical; h != nil {
			stage.Children = h.Children
			stage.Distances = h.Distances
		}
		record.Stages[i] = stage
	}
	return record
}

// SaveResults writes the collected run records to base+suffix with an
// atomic rename, gzip-compressed when asked. It returns the final path.
func SaveResults(base string, results *Results, compress bool) (string, error) {
	records := make(map[string]*RunRecord)
	for id, result := range results.Snapshot() {
		records[id] = Record(result)
	}
	return writeGob(base, records, compress)
}

// LoadResults reads a persisted result artifact, sniffing compression
// from the suffix.
func LoadResults(path string) (map[string]*RunRecord, error) {
	records := make(map[string]*RunRecord)
	if err := readGob(path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveData writes the companion data artifact next to the results.
func SaveData(base string, ds *dataset.Dataset, compress bool) (string, error) {
	record := &DataRecord{X: ds.X, Y: ds.Y, Index: ds.Index, Features: ds.Features}
	return writeGob(base, record, compress)
}

// LoadData reads a persisted data artifact.
func LoadData(path string) (*DataRecord, error) {
	var record DataRecord
	if err := readGob(path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeGob(base string, value interface{}, compress bool) (string, error) {
	path := base + SuffixPlain
	if compress {
		path = base + SuffixCompressed
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return "", errors.Wrap(err, "unable to create temporary artifact")
	}
	defer os.Remove(tmp.Name())

	var sink io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		sink = gz
	}
	if err := gob.NewEncoder(sink).Encode(value); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "unable to encode %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			tmp.Close()
			return "", errors.Wrapf(err, "unable to flush %s", path)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "unable to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrapf(err, "unable to move artifact into place at %s", path)
	}
	return path, nil
}

func readGob(path string, value interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open artifact %s", path)
	}
	defer f.Close()

	var source io.Reader = f
	if strings.HasSuffix(path, SuffixCompressed) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "unable to read compressed artifact %s", path)
		}
		defer gz.Close()
		source = gz
	}
	if err := gob.NewDecoder(source).Decode(value); err != nil {
		return errors.Wrapf(err, "unable to decode artifact %s", path)
	}
	return nil
}
