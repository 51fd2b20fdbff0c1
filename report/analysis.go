package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/weiihann/flowbench/results"
)

// WriteAnalysis writes a markdown table of per-benchmark statistics. Each
// row's speedup is relative to the fastest engine on the same normalized
// benchmark, so the fastest engine reads 1.00x.
func WriteAnalysis(w io.Writer, stats []results.Stats) error {
	if len(stats) == 0 {
		return fmt.Errorf("no results to analyze")
	}

	fastest := fastestByBenchmark(stats)

	fmt.Fprintln(w, "## Benchmark Analysis")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Benchmark | Runs | Mean | Median | Std Err "+
		"| Min | Max | Elements/sec | Failed | Speedup |")
	fmt.Fprintln(w, "|-----------|------|------|--------|---------"+
		"|-----|-----|--------------|--------|---------|")

	for _, st := range stats {
		speedup := "-"
		if best := fastest[Normalize(st.Name, "")]; st.Count > 0 && best > 0 {
			speedup = fmt.Sprintf("%.2fx", float64(st.Mean)/float64(best))
		}

		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s | %s | %d | %s |\n",
			st.Name,
			st.Count,
			formatStat(st, st.Mean),
			formatStat(st, st.Median),
			formatStat(st, st.StdErr),
			formatStat(st, st.Min),
			formatStat(st, st.Max),
			formatRate(st.Throughput),
			st.Failed,
			speedup,
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total benchmarks analyzed: %d\n", len(stats))

	if lo, hi, ok := results.Extremes(stats); ok {
		fmt.Fprintf(w, "Fastest benchmark: %s (%s)\n", lo.Name, formatDuration(lo.Mean))
		fmt.Fprintf(w, "Slowest benchmark: %s (%s)\n", hi.Name, formatDuration(hi.Mean))
	}

	return nil
}

// WriteAnalysisJSON writes per-benchmark statistics as JSON to w.
func WriteAnalysisJSON(w io.Writer, stats []results.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(stats)
}

func formatStat(st results.Stats, d time.Duration) string {
	if st.Count == 0 {
		return "-"
	}

	return formatDuration(d)
}

func fastestByBenchmark(stats []results.Stats) map[string]int64 {
	fastest := make(map[string]int64)

	for _, st := range stats {
		if st.Count == 0 || st.Mean <= 0 {
			continue
		}

		name := Normalize(st.Name, "")
		if cur, ok := fastest[name]; !ok || int64(st.Mean) < cur {
			fastest[name] = int64(st.Mean)
		}
	}

	return fastest
}
