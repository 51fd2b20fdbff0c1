// Package config loads benchmark suite files: the engines to compare and
// the workloads to run them on.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weiihann/flowbench/driver"
	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Suite is a benchmark suite definition.
type Suite struct {
	// Label is stored with the results and stripped during comparison.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// DrainTimeout bounds every drain; zero uses the driver default.
	DrainTimeout time.Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`

	// Repeat is the number of times the whole matrix runs.
	Repeat int `json:"repeat,omitempty" yaml:"repeat,omitempty"`

	// Fixture is an optional expected-output file, relative to the suite.
	Fixture string `json:"fixture,omitempty" yaml:"fixture,omitempty"`

	Engines []engine.Spec `json:"engines" yaml:"engines"`
	Cases   []CaseSpec    `json:"cases" yaml:"cases"`

	dir string
}

// CaseSpec describes one case; Name defaults to the workload's name.
type CaseSpec struct {
	Name     string                `json:"name,omitempty" yaml:"name,omitempty"`
	Workload workload.Config       `json:"workload" yaml:"workload"`
	Delta    *workload.DeltaConfig `json:"delta,omitempty" yaml:"delta,omitempty"`
}

// DefaultSuite returns a suite with defaults applied.
func DefaultSuite() *Suite {
	return &Suite{
		DrainTimeout: driver.DefaultDrainTimeout,
		Repeat:       1,
	}
}

// Load reads and validates a YAML or JSON suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}

	s := DefaultSuite()
	s.dir = filepath.Dir(path)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse suite %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse suite %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported suite format: %s", ext)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}

	return s, nil
}

// Validate checks engine and case definitions.
func (s *Suite) Validate() error {
	if len(s.Engines) == 0 {
		return fmt.Errorf("at least one engine is required")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("at least one case is required")
	}

	if s.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", s.Repeat)
	}

	if s.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout must not be negative, got %s", s.DrainTimeout)
	}

	names := make(map[string]struct{}, len(s.Engines))
	for i, e := range s.Engines {
		if e.Name == "" {
			return fmt.Errorf("engines[%d]: name is required", i)
		}

		if strings.Contains(e.Name, "/") {
			return fmt.Errorf("engine %s: name must not contain '/'", e.Name)
		}

		if e.Kind == "" {
			return fmt.Errorf("engine %s: kind is required", e.Name)
		}

		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("duplicate engine name %q", e.Name)
		}

		names[e.Name] = struct{}{}
	}

	for i, c := range s.Cases {
		if c.Workload.Kind == "" {
			return fmt.Errorf("cases[%d]: workload.kind is required", i)
		}

		if c.Delta != nil && c.Delta.Mode == "" {
			return fmt.Errorf("cases[%d]: delta.mode is required", i)
		}
	}

	return nil
}

// BuildCases generates every case's workload. Generated names must be unique.
func (s *Suite) BuildCases() ([]driver.Case, error) {
	cases := make([]driver.Case, 0, len(s.Cases))
	seen := make(map[string]struct{}, len(s.Cases))

	for i, spec := range s.Cases {
		wl, err := workload.New(spec.Workload)
		if err != nil {
			return nil, fmt.Errorf("cases[%d]: %w", i, err)
		}

		c := driver.Case{Name: spec.Name, Workload: wl}

		if spec.Delta != nil {
			delta, err := workload.NewDelta(wl, *spec.Delta)
			if err != nil {
				return nil, fmt.Errorf("cases[%d]: %w", i, err)
			}

			c.Delta = &delta
		}

		if c.Name == "" {
			c.Name = wl.Name()
			if c.Delta != nil {
				c.Name = c.Delta.Name()
			}
		}

		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate case name %q", c.Name)
		}

		seen[c.Name] = struct{}{}
		cases = append(cases, c)
	}

	return cases, nil
}

// Adapters builds every engine through reg.
func (s *Suite) Adapters(reg *engine.Registry, logger *slog.Logger) ([]engine.Adapter, error) {
	adapters := make([]engine.Adapter, 0, len(s.Engines))

	for _, spec := range s.Engines {
		if spec.Binary != "" && !filepath.IsAbs(spec.Binary) && strings.ContainsRune(spec.Binary, filepath.Separator) {
			spec.Binary = filepath.Join(s.dir, spec.Binary)
		}

		a, err := reg.Build(spec, logger)
		if err != nil {
			return nil, err
		}

		adapters = append(adapters, a)
	}

	return adapters, nil
}

// LoadFixture reads the suite's fixture file, or returns nil when none is
// configured.
func (s *Suite) LoadFixture() (*driver.Fixture, error) {
	if s.Fixture == "" {
		return nil, nil
	}

	path := s.Fixture
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}

	return driver.LoadFixture(path)
}
