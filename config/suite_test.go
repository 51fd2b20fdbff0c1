package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/flowbench/driver"
	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/engine/batch"
	"github.com/weiihann/flowbench/engine/stream"
	"github.com/weiihann/flowbench/workload"
)

const suiteYAML = `
label: nightly
drain_timeout: 5s
fixture: fixture.yaml
engines:
  - {name: batch, kind: batch, operator: count}
  - {name: stream, kind: stream, operator: count, workers: 2}
cases:
  - name: join/1000
    workload: {kind: keyed_pairs, count: 1000, num_keys: 100}
    delta: {mode: update, size: 100, seed: 7}
  - workload: {kind: graph, topology: tree, depth: 3, branching: 2}
`

func writeSuite(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	path := writeSuite(t, "suite.yaml", suiteYAML)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "fixture.yaml"),
		[]byte("cases:\n  join/1000:\n    initial: 100\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly", s.Label)
	assert.Equal(t, 5*time.Second, s.DrainTimeout)
	assert.Equal(t, 1, s.Repeat)
	require.Len(t, s.Engines, 2)
	assert.Equal(t, 2, s.Engines[1].Workers)

	cases, err := s.BuildCases()
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "join/1000", cases[0].Name)
	assert.Equal(t, 1000, cases[0].Workload.Len())
	require.NotNil(t, cases[0].Delta)
	assert.Equal(t, 100, cases[0].Delta.Len())

	assert.Equal(t, cases[1].Workload.Name(), cases[1].Name, "name defaults to the workload's")
	assert.Nil(t, cases[1].Delta)

	fixture, err := s.LoadFixture()
	require.NoError(t, err)

	n, ok := fixture.Expected("batch", "join/1000", driver.PhaseInitial)
	assert.True(t, ok)
	assert.Equal(t, 100, n)
}

func TestLoadJSON(t *testing.T) {
	path := writeSuite(t, "suite.json", `{
		"engines": [{"name": "b", "kind": "batch"}],
		"cases": [{"workload": {"kind": "sequence", "count": 10}}]
	}`)

	s, err := Load(path)
	require.NoError(t, err)

	fixture, err := s.LoadFixture()
	require.NoError(t, err)
	assert.Nil(t, fixture)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no engines", "cases: [{workload: {kind: sequence, count: 1}}]"},
		{"no cases", "engines: [{name: a, kind: batch}]"},
		{"unnamed engine", "engines: [{kind: batch}]\ncases: [{workload: {kind: sequence, count: 1}}]"},
		{"slash in name", "engines: [{name: a/b, kind: batch}]\ncases: [{workload: {kind: sequence, count: 1}}]"},
		{"no kind", "engines: [{name: a}]\ncases: [{workload: {kind: sequence, count: 1}}]"},
		{"duplicate engine", "engines: [{name: a, kind: batch}, {name: a, kind: stream}]\ncases: [{workload: {kind: sequence, count: 1}}]"},
		{"no workload kind", "engines: [{name: a, kind: batch}]\ncases: [{workload: {count: 1}}]"},
		{"bad repeat", "repeat: -1\nengines: [{name: a, kind: batch}]\ncases: [{workload: {kind: sequence, count: 1}}]"},
		{"not yaml", "engines: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSuite(t, "suite.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeSuite(t, "suite.toml", ""))
	assert.ErrorContains(t, err, "unsupported suite format")
}

func TestBuildCasesRejectDuplicatesAndBadWorkloads(t *testing.T) {
	s := &Suite{Cases: []CaseSpec{
		{Workload: workloadConfig("sequence", 10)},
		{Workload: workloadConfig("sequence", 10)},
	}}

	_, err := s.BuildCases()
	assert.ErrorContains(t, err, "duplicate case name")

	s = &Suite{Cases: []CaseSpec{{Workload: workloadConfig("sequence", -1)}}}
	_, err = s.BuildCases()
	assert.Error(t, err)
}

func TestAdapters(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, reg.Register(batch.Kind, batch.Factory))
	require.NoError(t, reg.Register(stream.Kind, stream.Factory))

	s, err := Load(writeSuite(t, "suite.yaml", suiteYAML))
	require.NoError(t, err)

	adapters, err := s.Adapters(reg, slog.Default())
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "batch", adapters[0].Name())
	assert.Equal(t, "stream", adapters[1].Name())

	s.Engines = append(s.Engines, engine.Spec{Name: "x", Kind: "process"})
	_, err = s.Adapters(reg, slog.Default())
	assert.Error(t, err)
}

func workloadConfig(kind string, count int) workload.Config {
	return workload.Config{Kind: workload.Kind(kind), Count: count}
}
