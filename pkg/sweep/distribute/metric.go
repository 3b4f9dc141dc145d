package distribute

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// metric accumulates evaluation timings for one stage label.
type metric struct {
	mu      *sync.Mutex
	elapsed time.Duration
	total   int64
	failed  int64
}

func (mt *metric) add(elapsed time.Duration, failed bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.total++
	mt.elapsed += elapsed
	if failed {
		mt.failed++
	}
}

func (mt *metric) avg() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.total == 0 {
		return time.Duration(0)
	}
	return round(time.Duration(float64(mt.elapsed) / float64(mt.total)))
}

// Measure collects per-pipeline wall-clock timings across workers.
type Measure struct {
	mu    sync.Mutex
	start time.Time
	runs  map[string]*metric
}

func NewMeasure() *Measure {
	return &Measure{
		start: time.Now(),
		runs:  make(map[string]*metric),
	}
}

// Add records the elapsed time of one pipeline evaluation.
func (m *Measure) Add(pipelineID string, elapsed time.Duration, failed bool) {
	m.mu.Lock()
	mt, ok := m.runs[pipelineID]
	if !ok {
		mt = &metric{mu: &sync.Mutex{}}
		m.runs[pipelineID] = mt
	}
	m.mu.Unlock()
	mt.add(elapsed, failed)
}

// Summary logs the aggregate timings of the run.
func (m *Measure) Summary(log *zap.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total, failed int64
	var elapsed time.Duration
	for _, mt := range m.runs {
		mt.mu.Lock()
		total += mt.total
		failed += mt.failed
		elapsed += mt.elapsed
		mt.mu.Unlock()
	}
	avg := time.Duration(0)
	if total > 0 {
		avg = round(time.Duration(float64(elapsed) / float64(total)))
	}
	log.Info("batch finished",
		zap.Int64("pipelines", total),
		zap.Int64("failed", failed),
		zap.Duration("wall", round(time.Since(m.start))),
		zap.Duration("avg_per_pipeline", avg),
	)
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		d = d.Round(time.Second)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}
	return d
}
