package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/weiihann/flowbench/config"
	"github.com/weiihann/flowbench/driver"
	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/engine/batch"
	"github.com/weiihann/flowbench/engine/stream"
	"github.com/weiihann/flowbench/harness"
	"github.com/weiihann/flowbench/report"
	"github.com/weiihann/flowbench/results"
)

func newRunCmd(logger *slog.Logger, settings settingsFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark suite across engines",
		Long: `Load a suite file, run every case through every engine, and save
the recorded samples. The output format follows the file extension:
.json, .sz (snappy-compressed JSON) or .db/.sqlite.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			return runSuite(cmd.Context(), logger, cmd.OutOrStdout(), runConfig{
				suitePath:   v.GetString("suite"),
				outPath:     v.GetString("out"),
				label:       v.GetString("label"),
				repeat:      v.GetInt("repeat"),
				metricsFile: v.GetString("metrics-file"),
			})
		},
	}

	flags := cmd.Flags()
	flags.String("suite", "", "Path to the suite file (YAML or JSON)")
	flags.String("out", "results.json", "Where to save the samples")
	flags.String("label", "", "Result set label (default: the suite's label)")
	flags.Int("repeat", 0, "Times to run the matrix (default: the suite's repeat)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile")

	return cmd
}

type runConfig struct {
	suitePath   string
	outPath     string
	label       string
	repeat      int
	metricsFile string
}

// newRegistry registers every adapter kind the CLI can build.
func newRegistry() (*engine.Registry, error) {
	reg := engine.NewRegistry()

	for kind, f := range map[string]engine.Factory{
		batch.Kind:   batch.Factory,
		stream.Kind:  stream.Factory,
		harness.Kind: harness.Factory,
	} {
		if err := reg.Register(kind, f); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func runSuite(ctx context.Context, logger *slog.Logger, stdout io.Writer, cfg runConfig) error {
	if cfg.suitePath == "" {
		return fmt.Errorf("a suite file must be specified via --suite")
	}

	suite, err := config.Load(cfg.suitePath)
	if err != nil {
		return err
	}

	if cfg.label != "" {
		suite.Label = cfg.label
	}

	if cfg.repeat > 0 {
		suite.Repeat = cfg.repeat
	}

	cases, err := suite.BuildCases()
	if err != nil {
		return err
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}

	adapters, err := suite.Adapters(reg, logger)
	if err != nil {
		return err
	}

	fixture, err := suite.LoadFixture()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	store := results.NewStore(suite.Label)

	d := driver.New(driver.Config{
		DrainTimeout: suite.DrainTimeout,
		Fixture:      fixture,
		Store:        store,
		Metrics:      driver.NewMetrics(promReg),
		Logger:       logger,
	})

	logger.InfoContext(ctx, "starting suite",
		slog.String("suite", cfg.suitePath),
		slog.String("run_id", store.RunID()),
		slog.Int("cases", len(cases)),
		slog.Int("engines", len(adapters)),
		slog.Int("repeat", suite.Repeat),
	)

	for i := range suite.Repeat {
		if err := d.Run(ctx, cases, adapters); err != nil {
			return fmt.Errorf("repeat %d: %w", i+1, err)
		}
	}

	store.Seal()

	if err := saveResults(ctx, cfg.outPath, store); err != nil {
		return err
	}

	if cfg.metricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.metricsFile, promReg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if err := report.WriteAnalysis(stdout, results.Summarize(store.All())); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}

	logger.InfoContext(ctx, "suite complete",
		slog.String("out", cfg.outPath),
		slog.Int("samples", store.Len()),
	)

	return nil
}

func saveResults(ctx context.Context, path string, store *results.Store) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		return results.SaveSQLite(ctx, path, store)
	default:
		return results.SaveFile(path, store)
	}
}
