package report

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pyneda/apifuzz/pkg/api/core"
)

// TimingStats summarises response times of one operation, in milliseconds.
type TimingStats struct {
	Operation string  `json:"operation"`
	Method    string  `json:"method"`
	Path      string  `json:"path"`
	Count     int     `json:"count"`
	Min       float64 `json:"min_ms"`
	Max       float64 `json:"max_ms"`
	Mean      float64 `json:"mean_ms"`
	StdDev    float64 `json:"std_dev_ms"`
}

// ComputeStats returns population statistics over samples, or false when
// there are none.
func ComputeStats(samples []time.Duration) (TimingStats, bool) {
	if len(samples) == 0 {
		return TimingStats{}, false
	}
	stats := TimingStats{Count: len(samples), Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, d := range samples {
		ms := milliseconds(d)
		stats.Min = math.Min(stats.Min, ms)
		stats.Max = math.Max(stats.Max, ms)
		sum += ms
	}
	stats.Mean = sum / float64(len(samples))

	variance := 0.0
	for _, d := range samples {
		delta := milliseconds(d) - stats.Mean
		variance += delta * delta
	}
	stats.StdDev = math.Sqrt(variance / float64(len(samples)))
	return stats, true
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type timingSeries struct {
	method  string
	path    string
	samples []time.Duration
}

// Timings collects response times per operation.
type Timings struct {
	mu     sync.Mutex
	series map[string]*timingSeries
}

func NewTimings() *Timings {
	return &Timings{series: make(map[string]*timingSeries)}
}

func (t *Timings) Observe(op core.Operation, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := op.Identity()
	s, ok := t.series[id]
	if !ok {
		s = &timingSeries{method: strings.ToUpper(op.Method), path: op.Path}
		t.series[id] = s
	}
	s.samples = append(s.samples, d)
}

// Stats returns one entry per observed operation, sorted by identity.
func (t *Timings) Stats() []TimingStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.series))
	for id := range t.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]TimingStats, 0, len(ids))
	for _, id := range ids {
		s := t.series[id]
		stats, ok := ComputeStats(s.samples)
		if !ok {
			continue
		}
		stats.Operation = id
		stats.Method = s.method
		stats.Path = s.path
		out = append(out, stats)
	}
	return out
}

// Write stores one file per operation under dir, named after its path and
// method.
func (t *Timings) Write(dir string) error {
	for _, stats := range t.Stats() {
		name := PathSlug(stats.Path) + "-" + strings.ToLower(stats.Method) + ".json"
		if err := writeJSONFile(filepath.Join(dir, name), stats); err != nil {
			return err
		}
	}
	return nil
}
