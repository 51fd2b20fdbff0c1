package driver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PhaseCounts maps a phase name to an expected drained item count.
type PhaseCounts map[Phase]int

// Fixture is an oracle of expected drained output per case and phase.
// Engine entries override the shared case entries, for engines whose
// drains report a different view of the same output (a batch engine
// reports the full recomputed output on every epoch).
type Fixture struct {
	Cases   map[string]PhaseCounts            `yaml:"cases"`
	Engines map[string]map[string]PhaseCounts `yaml:"engines"`
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	return &f, nil
}

// Expected returns the expected drained items for one phase.
func (f *Fixture) Expected(engine, caseName string, phase Phase) (int, bool) {
	if f == nil {
		return 0, false
	}

	if n, ok := f.Engines[engine][caseName][phase]; ok {
		return n, true
	}

	n, ok := f.Cases[caseName][phase]

	return n, ok
}
