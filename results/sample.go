// Package results holds timing samples produced by benchmark runs and
// loads result sets written by this tool or by other benchmark harnesses.
package results

import (
	"strings"
	"time"
)

// Sample is one timed measurement of a named benchmark.
type Sample struct {
	Engine     string        `json:"engine"`
	Name       string        `json:"name"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Items      int           `json:"items"`
	Failed     bool          `json:"failed,omitempty"`
	Error      string        `json:"error,omitempty"`
	RunID      string        `json:"run_id,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Throughput returns items processed per second. It is undefined (ok is
// false) for failed samples and samples with no elapsed time.
func (s Sample) Throughput() (float64, bool) {
	if s.Failed || s.Elapsed <= 0 {
		return 0, false
	}

	return float64(s.Items) / s.Elapsed.Seconds(), true
}

// EngineOf returns the first path segment of a benchmark name.
func EngineOf(name string) string {
	engine, _, _ := strings.Cut(name, "/")

	return engine
}
