package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

// WriteMarkdown writes the report as a markdown table.
func WriteMarkdown(w io.Writer, r *Report) error {
	fmt.Fprintln(w, "## Benchmark Comparison")
	fmt.Fprintln(w)

	if len(r.Rows) == 0 {
		fmt.Fprintln(w, "No comparable benchmarks.")

		return nil
	}

	fmt.Fprintln(w, "| Benchmark | Baseline | Candidate | Speedup | Notes |")
	fmt.Fprintln(w, "|-----------|----------|-----------|---------|-------|")

	for _, row := range r.Rows {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			row.Benchmark,
			formatValue(row.Baseline, r.Metric),
			formatValue(row.Candidate, r.Metric),
			formatSpeedup(row.Speedup),
			formatNotes(row.Notes),
		)
	}

	if r.Summary != nil {
		fmt.Fprintln(w)
		writeSummary(w, r.Summary)
	}

	return nil
}

// WriteTable writes the report as an aligned plain-text table.
func WriteTable(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "BENCHMARK\tBASELINE\tCANDIDATE\tSPEEDUP\tNOTES")

	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.Benchmark,
			formatValue(row.Baseline, r.Metric),
			formatValue(row.Candidate, r.Metric),
			formatSpeedup(row.Speedup),
			formatNotes(row.Notes),
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Summary != nil {
		fmt.Fprintln(w)
		writeSummary(w, r.Summary)
	}

	return nil
}

func writeSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "Compared: %d\n", s.TotalCompared)
	fmt.Fprintf(w, "Average speedup: %.2fx\n", s.AverageSpeedup)
	fmt.Fprintf(w, "Fastest: %s (%.2fx)\n", s.Fastest.Benchmark, s.Fastest.Speedup)
	fmt.Fprintf(w, "Slowest: %s (%.2fx)\n", s.Slowest.Benchmark, s.Slowest.Speedup)
}

func formatValue(v *float64, metric Metric) string {
	if v == nil {
		return "-"
	}

	if metric == MetricThroughput {
		return formatRate(*v)
	}

	return formatDuration(time.Duration(*v))
}

func formatSpeedup(v *float64) string {
	if v == nil {
		return "-"
	}

	return fmt.Sprintf("%.2fx", *v)
}

func formatNotes(notes []string) string {
	if len(notes) == 0 {
		return "OK"
	}

	return strings.Join(notes, "; ")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatRate(perSec float64) string {
	if perSec == 0 {
		return "-"
	}

	units := []string{"", "K", "M", "G", "T"}
	size := perSec
	unit := 0

	for size >= 1000 && unit < len(units)-1 {
		size /= 1000
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + units[unit] + "/s"
}
