// Package report compares result sets from two benchmark runs and formats
// comparisons and per-engine analyses.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/weiihann/flowbench/results"
)

// ErrNoComparableBenchmarks is reported as a warning when neither store
// holds any benchmark.
var ErrNoComparableBenchmarks = errors.New("no comparable benchmarks")

// ErrMixedEngines is reported as a warning when an unlabeled store holds
// samples from more than one engine.
var ErrMixedEngines = errors.New("store holds several engines")

// Metric selects the sample value a report compares.
type Metric string

const (
	// MetricElapsed compares mean elapsed nanoseconds; lower is better.
	MetricElapsed Metric = "elapsed"
	// MetricThroughput compares mean items per second; higher is better.
	MetricThroughput Metric = "throughput"
)

// ParseMetric validates a metric name. The empty string selects elapsed.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricElapsed:
		return MetricElapsed, nil
	case MetricThroughput:
		return MetricThroughput, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want %s or %s)", s, MetricElapsed, MetricThroughput)
	}
}

// Default thresholds on the candidate/baseline ratio.
const (
	DefaultSlowerThreshold = 1.2
	DefaultFasterThreshold = 0.8
)

// Notes attached to rows.
const (
	NoteMissingBaseline  = "missing baseline"
	NoteMissingCandidate = "missing candidate"
	NoteZeroBaseline     = "zero baseline"
	NoteSlower           = "candidate significantly slower"
	NoteFaster           = "candidate significantly faster"
)

// Options configures Compare.
type Options struct {
	Metric Metric
	// Ratios at or above SlowerThreshold, or at or below
	// FasterThreshold, get a note. Under MetricThroughput a high ratio
	// means the candidate is faster.
	SlowerThreshold float64
	FasterThreshold float64
}

// DefaultOptions compares elapsed time with the default thresholds.
func DefaultOptions() Options {
	return Options{
		Metric:          MetricElapsed,
		SlowerThreshold: DefaultSlowerThreshold,
		FasterThreshold: DefaultFasterThreshold,
	}
}

// Row compares one normalized benchmark name.
type Row struct {
	Benchmark string   `json:"benchmark"`
	Baseline  *float64 `json:"baseline_value"`
	Candidate *float64 `json:"candidate_value"`
	Speedup   *float64 `json:"speedup_factor"`
	Notes     []string `json:"notes"`
}

// Extreme identifies a row by name and ratio.
type Extreme struct {
	Benchmark string  `json:"benchmark"`
	Speedup   float64 `json:"speedup_factor"`
}

// Summary aggregates the rows that have a speedup.
type Summary struct {
	TotalCompared  int     `json:"total_compared"`
	AverageSpeedup float64 `json:"average_speedup"`
	Fastest        Extreme `json:"fastest"`
	Slowest        Extreme `json:"slowest"`
}

// Report is the result of one comparison.
type Report struct {
	Metric   Metric   `json:"metric"`
	Rows     []Row    `json:"rows"`
	Summary  *Summary `json:"summary"`
	Warnings []error  `json:"-"`
}

// Normalize strips the engine prefix from a benchmark name. With a label
// the exact prefix label+"/" is removed; without one the first path
// segment is dropped. Names without a separator are kept as is.
func Normalize(name, label string) string {
	if label != "" {
		return strings.TrimPrefix(name, label+"/")
	}

	if _, rest, ok := strings.Cut(name, "/"); ok {
		return rest
	}

	return name
}

// side is the aggregated value of one store for one benchmark.
type side struct {
	sum     float64
	n       int
	failure string
}

func (s *side) value() (float64, bool) {
	if s == nil || s.n == 0 {
		return 0, false
	}

	return s.sum / float64(s.n), true
}

// selectSamples picks the samples of store that take part in a comparison
// and the label to normalize their names with. A label selects the samples
// of that engine (or under that name prefix). Without a matching label a
// single-engine store is used whole; a store mixing engines keeps the
// engine prefix in every name so engines are never averaged together.
func selectSamples(store *results.Store, side string) ([]results.Sample, func(string) string, error) {
	if label := store.Label(); label != "" {
		selected := store.ByEngine(label)
		for sample := range store.ByPrefix(label + "/") {
			if sample.Engine != label {
				selected = append(selected, sample)
			}
		}

		if len(selected) > 0 {
			return selected, func(name string) string { return Normalize(name, label) }, nil
		}
	}

	all := store.All()

	engines := store.Engines()
	if len(engines) <= 1 {
		return all, func(name string) string { return Normalize(name, "") }, nil
	}

	warning := fmt.Errorf("%w: %s has %s; names keep their engine prefix, set a label to select one",
		ErrMixedEngines, side, strings.Join(engines, ", "))

	return all, func(name string) string { return name }, warning
}

func collect(store *results.Store, metric Metric, sideName string) (map[string]*side, error) {
	out := make(map[string]*side)

	if store == nil {
		return out, nil
	}

	samples, normalize, warning := selectSamples(store, sideName)

	for _, sample := range samples {
		name := normalize(sample.Name)

		sd, ok := out[name]
		if !ok {
			sd = &side{}
			out[name] = sd
		}

		if sample.Failed {
			if sd.failure == "" {
				sd.failure = sample.Error
			}

			continue
		}

		switch metric {
		case MetricThroughput:
			if tput, ok := sample.Throughput(); ok {
				sd.sum += tput
				sd.n++
			}
		default:
			sd.sum += float64(sample.Elapsed.Nanoseconds())
			sd.n++
		}
	}

	return out, warning
}

// Compare builds a report of candidate against baseline.
func Compare(baseline, candidate *results.Store, opts Options) *Report {
	if opts.Metric == "" {
		opts.Metric = MetricElapsed
	}

	if opts.SlowerThreshold == 0 {
		opts.SlowerThreshold = DefaultSlowerThreshold
	}

	if opts.FasterThreshold == 0 {
		opts.FasterThreshold = DefaultFasterThreshold
	}

	report := &Report{Metric: opts.Metric}

	base, warning := collect(baseline, opts.Metric, "baseline")
	if warning != nil {
		report.Warnings = append(report.Warnings, warning)
	}

	cand, warning := collect(candidate, opts.Metric, "candidate")
	if warning != nil {
		report.Warnings = append(report.Warnings, warning)
	}

	names := make([]string, 0, len(base)+len(cand))
	for name := range base {
		names = append(names, name)
	}

	for name := range cand {
		if _, ok := base[name]; !ok {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	report.Rows = make([]Row, 0, len(names))

	if len(names) == 0 {
		report.Warnings = append(report.Warnings, ErrNoComparableBenchmarks)

		return report
	}

	for _, name := range names {
		report.Rows = append(report.Rows, compareRow(name, base[name], cand[name], opts))
	}

	report.Summary = summarize(report.Rows, opts.Metric)

	return report
}

func compareRow(name string, base, cand *side, opts Options) Row {
	row := Row{Benchmark: name, Notes: []string{}}

	if v, ok := base.value(); ok {
		row.Baseline = &v
	} else if base != nil && base.failure != "" {
		row.Notes = append(row.Notes, "baseline trial failed: "+base.failure)
	} else {
		row.Notes = append(row.Notes, NoteMissingBaseline)
	}

	if v, ok := cand.value(); ok {
		row.Candidate = &v
	} else if cand != nil && cand.failure != "" {
		row.Notes = append(row.Notes, "candidate trial failed: "+cand.failure)
	} else {
		row.Notes = append(row.Notes, NoteMissingCandidate)
	}

	if row.Baseline == nil || row.Candidate == nil {
		return row
	}

	if *row.Baseline == 0 {
		row.Notes = append(row.Notes, NoteZeroBaseline)

		return row
	}

	speedup := *row.Candidate / *row.Baseline
	if *row.Candidate == *row.Baseline {
		speedup = 1
	}

	row.Speedup = &speedup

	high, low := NoteSlower, NoteFaster
	if opts.Metric == MetricThroughput {
		high, low = NoteFaster, NoteSlower
	}

	switch {
	case speedup >= opts.SlowerThreshold:
		row.Notes = append(row.Notes, high)
	case speedup <= opts.FasterThreshold:
		row.Notes = append(row.Notes, low)
	}

	return row
}

func summarize(rows []Row, metric Metric) *Summary {
	var (
		sum    float64
		n      int
		lo, hi Extreme
	)

	for _, row := range rows {
		if row.Speedup == nil {
			continue
		}

		s := *row.Speedup
		sum += s

		if n == 0 || s < lo.Speedup {
			lo = Extreme{Benchmark: row.Benchmark, Speedup: s}
		}

		if n == 0 || s > hi.Speedup {
			hi = Extreme{Benchmark: row.Benchmark, Speedup: s}
		}

		n++
	}

	if n == 0 {
		return nil
	}

	summary := &Summary{
		TotalCompared:  n,
		AverageSpeedup: sum / float64(n),
		Fastest:        lo,
		Slowest:        hi,
	}

	if metric == MetricThroughput {
		summary.Fastest, summary.Slowest = hi, lo
	}

	return summary
}
