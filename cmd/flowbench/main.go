// Package main provides the CLI entry point for flowbench, a cross-engine
// dataflow benchmarking tool.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("flowbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "flowbench",
		Short: "Cross-engine dataflow benchmarking tool",
		Long: `Flowbench runs the same deterministic workloads through several
dataflow engines, records timed samples for every engine, and compares
result sets from different runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "",
		"Settings file (YAML, JSON or TOML); flags and FLOWBENCH_* env vars override it")

	settings := func(cmd *cobra.Command) (*viper.Viper, error) {
		return loadSettings(cmd, configPath)
	}

	root.AddCommand(
		newRunCmd(logger, settings),
		newCompareCmd(logger, settings),
		newAnalyzeCmd(logger, settings),
		newWorkloadCmd(logger, settings),
		newBuildCmd(logger, settings),
	)

	return root
}

type settingsFunc func(cmd *cobra.Command) (*viper.Viper, error)

// loadSettings layers flags over FLOWBENCH_* env vars over the optional
// settings file. Keys are flag names; env vars use underscores.
func loadSettings(cmd *cobra.Command, configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOWBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv("FLOWBENCH_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			var missing viper.ConfigFileNotFoundError
			if !errors.As(err, &missing) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	return v, nil
}
