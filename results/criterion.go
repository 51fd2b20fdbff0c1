package results

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type criterionEstimate struct {
	PointEstimate float64 `json:"point_estimate"`
	StandardError float64 `json:"standard_error"`
}

type criterionEstimates struct {
	Mean   criterionEstimate `json:"mean"`
	Median criterionEstimate `json:"median"`
}

type criterionBenchmark struct {
	GroupID    string `json:"group_id"`
	FunctionID string `json:"function_id"`
	ValueStr   string `json:"value_str"`
	FullID     string `json:"full_id"`
	Throughput *struct {
		Elements *int64 `json:"Elements"`
		Bytes    *int64 `json:"Bytes"`
	} `json:"throughput"`
}

func (b criterionBenchmark) name() string {
	if b.FullID != "" {
		return b.FullID
	}

	parts := []string{b.GroupID}
	if b.FunctionID != "" {
		parts = append(parts, b.FunctionID)
	}

	if b.ValueStr != "" {
		parts = append(parts, b.ValueStr)
	}

	return strings.Join(parts, "/")
}

// isCriterionDir reports whether dir looks like a criterion output tree.
func isCriterionDir(dir string) bool {
	found := false

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return fs.SkipAll
		}

		if !d.IsDir() && d.Name() == "estimates.json" {
			found = true

			return fs.SkipAll
		}

		return nil
	})

	return found
}

// loadCriterion reads the latest estimates of every benchmark under dir.
// Only "new" directories are read; "base" and "change" hold older runs
// and relative changes.
func loadCriterion(dir string, store *Store) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() || d.Name() != "new" {
			return nil
		}

		estimatesPath := filepath.Join(path, "estimates.json")
		if _, err := os.Stat(estimatesPath); err != nil {
			return fs.SkipDir
		}

		sample, err := readCriterion(path)
		if err != nil {
			return err
		}

		if err := store.Record(sample); err != nil {
			return err
		}

		return fs.SkipDir
	})
}

func readCriterion(dir string) (Sample, error) {
	var est criterionEstimates
	if err := readJSON(filepath.Join(dir, "estimates.json"), &est); err != nil {
		return Sample{}, err
	}

	var bench criterionBenchmark
	if err := readJSON(filepath.Join(dir, "benchmark.json"), &bench); err != nil {
		return Sample{}, err
	}

	name := bench.name()
	if name == "" {
		return Sample{}, fmt.Errorf("%s: benchmark has no id", dir)
	}

	sample := Sample{
		Engine:  EngineOf(name),
		Name:    name,
		Elapsed: time.Duration(est.Mean.PointEstimate),
	}

	if bench.Throughput != nil && bench.Throughput.Elements != nil {
		sample.Items = int(*bench.Throughput.Elements)
	}

	if info, err := os.Stat(filepath.Join(dir, "estimates.json")); err == nil {
		sample.RecordedAt = info.ModTime().UTC()
	}

	return sample, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}
