package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weiihann/flowbench/harness"
	"github.com/weiihann/flowbench/workload"
)

func newWorkloadCmd(logger *slog.Logger, settings settingsFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workload",
		Short: "Generate a workload and export it as JSONL",
		Long: `Generate a deterministic workload and write one update per line, for
harnesses that read their input from a file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			cfg := workload.Config{
				Kind:        workload.Kind(v.GetString("kind")),
				Count:       v.GetInt("count"),
				NumKeys:     v.GetInt("num-keys"),
				Topology:    workload.Topology(v.GetString("topology")),
				Nodes:       v.GetInt("nodes"),
				Edges:       v.GetInt("edges"),
				Depth:       v.GetInt("depth"),
				Branching:   v.GetInt("branching"),
				Probability: v.GetFloat64("probability"),
				Factor:      v.GetInt("factor"),
				Seed:        v.GetInt64("seed"),
			}

			return exportWorkload(cmd.Context(), logger, cmd.OutOrStdout(), cfg, v.GetString("out"))
		},
	}

	flags := cmd.Flags()
	flags.String("kind", string(workload.KindSequence),
		"Workload kind: sequence, keyed_pairs, duplicates, random, keyed_random, graph")
	flags.Int("count", 1000, "Number of records (unique values for duplicates)")
	flags.Int("num-keys", 10, "Key space for keyed kinds")
	flags.String("topology", string(workload.TopologyChain),
		"Graph topology: chain, random, complete, tree, probability")
	flags.Int("nodes", 100, "Graph node count")
	flags.Int("edges", 200, "Edge count for random graphs")
	flags.Int("depth", 3, "Tree depth")
	flags.Int("branching", 2, "Tree branching factor")
	flags.Float64("probability", 0.1, "Edge probability for probability graphs")
	flags.Int("factor", 2, "Copies per value for duplicates")
	flags.Int64("seed", 42, "Random seed")
	flags.String("out", "", "Output file (default: stdout)")

	return cmd
}

func exportWorkload(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	cfg workload.Config,
	outPath string,
) error {
	wl, err := workload.New(cfg)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	out := stdout

	var f *os.File

	if outPath != "" {
		f, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create workload file: %w", err)
		}
		defer f.Close()

		out = f
	}

	bw := bufio.NewWriter(out)

	summary, err := workload.Write(bw, wl)
	if err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush workload: %w", err)
	}

	if f != nil {
		if err := f.Close(); err != nil {
			return fmt.Errorf("close workload file: %w", err)
		}
	}

	logger.InfoContext(ctx, "workload generated",
		slog.String("name", wl.Name()),
		slog.Int("records", summary.Records),
		slog.Int("distinct_keys", summary.DistinctKeys),
	)

	return nil
}

func newBuildCmd(logger *slog.Logger, settings settingsFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [ENGINE...]",
		Short: "Build harness binaries for the process adapter",
		Long: `Build the harness binary of each named engine (default: every
harness directory under --harnesses-dir) and print its path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			return buildHarnesses(cmd.Context(), logger, cmd.OutOrStdout(),
				v.GetString("harnesses-dir"), args)
		},
	}

	cmd.Flags().String("harnesses-dir", "harnesses", "Path to the harnesses directory")

	return cmd
}

func buildHarnesses(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	harnessesDir string,
	engines []string,
) error {
	dir, err := filepath.Abs(harnessesDir)
	if err != nil {
		return fmt.Errorf("resolve harnesses dir: %w", err)
	}

	if len(engines) == 0 {
		engines, err = harness.Discover(dir)
		if err != nil {
			return err
		}
	}

	if len(engines) == 0 {
		return fmt.Errorf("no harnesses found in %s", dir)
	}

	for _, name := range engines {
		binPath, err := harness.Build(ctx, logger, dir, name)
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}

		fmt.Fprintln(out, binPath)
	}

	return nil
}
