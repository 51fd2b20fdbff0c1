package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/flowbench/report"
	"github.com/weiihann/flowbench/results"
)

// Report formats.
const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatTable    = "table"
)

func addS3Flags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("s3-region", "", "AWS region for s3:// locations")
	flags.String("s3-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")
	flags.Bool("s3-path-style", false, "Use path-style S3 addressing")
}

func s3Options(v *viper.Viper) results.S3Options {
	return results.S3Options{
		Region:       v.GetString("s3-region"),
		Endpoint:     v.GetString("s3-endpoint"),
		UsePathStyle: v.GetBool("s3-path-style"),
	}
}

func newCompareCmd(logger *slog.Logger, settings settingsFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a candidate result set against a baseline",
		Long: `Load two result sets, pair benchmarks by normalized name and report
the candidate/baseline ratio for each. Locations may be result files,
SQLite databases, criterion directories, Go benchmark output or s3:// URLs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			metric, err := report.ParseMetric(v.GetString("metric"))
			if err != nil {
				return err
			}

			return runCompare(cmd.Context(), logger, cmd.OutOrStdout(), compareConfig{
				baseline:       v.GetString("baseline"),
				candidate:      v.GetString("candidate"),
				baselineLabel:  v.GetString("baseline-label"),
				candidateLabel: v.GetString("candidate-label"),
				outPath:        v.GetString("out"),
				format:         v.GetString("format"),
				s3:             s3Options(v),
				opts: report.Options{
					Metric:          metric,
					SlowerThreshold: v.GetFloat64("slower"),
					FasterThreshold: v.GetFloat64("faster"),
				},
			})
		},
	}

	flags := cmd.Flags()
	flags.String("baseline", "", "Baseline result location")
	flags.String("candidate", "", "Candidate result location")
	flags.String("baseline-label", "", "Engine label stripped from baseline names")
	flags.String("candidate-label", "", "Engine label stripped from candidate names")
	flags.String("out", "", "Write the report here instead of stdout")
	flags.String("format", formatJSON, "Report format: json, markdown, table")
	flags.String("metric", string(report.MetricElapsed), "Compared value: elapsed, throughput")
	flags.Float64("slower", report.DefaultSlowerThreshold, "Ratio at or above which a row is flagged")
	flags.Float64("faster", report.DefaultFasterThreshold, "Ratio at or below which a row is flagged")
	addS3Flags(cmd)

	return cmd
}

type compareConfig struct {
	baseline       string
	candidate      string
	baselineLabel  string
	candidateLabel string
	outPath        string
	format         string
	s3             results.S3Options
	opts           report.Options
}

func runCompare(ctx context.Context, logger *slog.Logger, stdout io.Writer, cfg compareConfig) error {
	if cfg.baseline == "" || cfg.candidate == "" {
		return fmt.Errorf("both --baseline and --candidate must be specified")
	}

	write, err := reportWriter(cfg.format)
	if err != nil {
		return err
	}

	baseline, err := results.Load(ctx, cfg.baseline, results.LoadOptions{
		Label: cfg.baselineLabel,
		S3:    cfg.s3,
	})
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}

	candidate, err := results.Load(ctx, cfg.candidate, results.LoadOptions{
		Label: cfg.candidateLabel,
		S3:    cfg.s3,
	})
	if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}

	r := report.Compare(baseline, candidate, cfg.opts)

	for _, w := range r.Warnings {
		logger.WarnContext(ctx, "comparison warning", slog.String("warning", w.Error()))
	}

	out := stdout

	if cfg.outPath != "" {
		f, err := os.Create(cfg.outPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()

		out = f
	}

	if err := write(out, r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.InfoContext(ctx, "comparison complete",
		slog.Int("rows", len(r.Rows)),
		slog.Int("warnings", len(r.Warnings)),
	)

	return nil
}

func reportWriter(format string) (func(io.Writer, *report.Report) error, error) {
	switch format {
	case formatJSON:
		return report.WriteJSON, nil
	case formatMarkdown:
		return report.WriteMarkdown, nil
	case formatTable:
		return report.WriteTable, nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want json, markdown or table)", format)
	}
}

func newAnalyzeCmd(logger *slog.Logger, settings settingsFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze LOCATION...",
		Short: "Summarize per-benchmark statistics of result sets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			return runAnalyze(cmd.Context(), logger, cmd.OutOrStdout(), args,
				v.GetString("format"), s3Options(v))
		},
	}

	cmd.Flags().String("format", formatMarkdown, "Output format: markdown, json")
	addS3Flags(cmd)

	return cmd
}

func runAnalyze(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	locations []string,
	format string,
	s3Opts results.S3Options,
) error {
	var samples []results.Sample

	for _, loc := range locations {
		store, err := results.Load(ctx, loc, results.LoadOptions{S3: s3Opts})
		if err != nil {
			return err
		}

		logger.DebugContext(ctx, "loaded results",
			slog.String("location", loc),
			slog.Int("samples", store.Len()),
		)

		samples = append(samples, store.All()...)
	}

	stats := results.Summarize(samples)

	switch format {
	case formatMarkdown:
		return report.WriteAnalysis(out, stats)
	case formatJSON:
		return report.WriteAnalysisJSON(out, stats)
	default:
		return fmt.Errorf("unknown analysis format %q (want markdown or json)", format)
	}
}
