package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/flowbench/results"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name, label, want string
	}{
		{"timely/join/1000", "", "join/1000"},
		{"timely/join/1000", "timely", "join/1000"},
		{"timely/join/1000", "hydro", "timely/join/1000"},
		{"plain", "", "plain"},
		{"differential/reach/initial", "differential", "reach/initial"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.name, tt.label), "%s label=%q", tt.name, tt.label)
	}
}

func TestCompareThresholdBoundaries(t *testing.T) {
	base := storeOf(t, "",
		results.Sample{Name: "a/at-slower", Elapsed: 1000},
		results.Sample{Name: "a/at-faster", Elapsed: 1000},
		results.Sample{Name: "a/inside", Elapsed: 1000},
	)
	cand := storeOf(t, "",
		results.Sample{Name: "b/at-slower", Elapsed: 1200},
		results.Sample{Name: "b/at-faster", Elapsed: 800},
		results.Sample{Name: "b/inside", Elapsed: 1100},
	)

	r := Compare(base, cand, DefaultOptions())
	require.Len(t, r.Rows, 3)

	byName := make(map[string]Row)
	for _, row := range r.Rows {
		byName[row.Benchmark] = row
	}

	assert.Equal(t, []string{NoteSlower}, byName["at-slower"].Notes)
	assert.Equal(t, []string{NoteFaster}, byName["at-faster"].Notes)
	assert.Empty(t, byName["inside"].Notes)
}

func TestCompareEqualIsExactlyOne(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x", Elapsed: 333})
	cand := storeOf(t, "", results.Sample{Name: "b/x", Elapsed: 333})

	r := Compare(base, cand, DefaultOptions())
	require.NotNil(t, r.Rows[0].Speedup)
	assert.Equal(t, 1.0, *r.Rows[0].Speedup)
	assert.Empty(t, r.Rows[0].Notes)
}

func TestCompareDisjoint(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x", Elapsed: 1})
	cand := storeOf(t, "", results.Sample{Name: "b/y", Elapsed: 1})

	r := Compare(base, cand, DefaultOptions())
	require.Len(t, r.Rows, 2)

	assert.NotNil(t, r.Rows[0].Baseline)
	assert.Nil(t, r.Rows[0].Candidate)
	assert.Equal(t, []string{NoteMissingCandidate}, r.Rows[0].Notes)

	assert.Nil(t, r.Rows[1].Baseline)
	assert.NotNil(t, r.Rows[1].Candidate)
	assert.Equal(t, []string{NoteMissingBaseline}, r.Rows[1].Notes)

	assert.Nil(t, r.Summary, "no row has both sides")
	assert.Empty(t, r.Warnings)
}

func TestCompareEmpty(t *testing.T) {
	r := Compare(results.NewStore(""), results.NewStore(""), DefaultOptions())

	assert.Empty(t, r.Rows)
	assert.Nil(t, r.Summary)
	require.Len(t, r.Warnings, 1)
	assert.ErrorIs(t, r.Warnings[0], ErrNoComparableBenchmarks)
}

func TestCompareFailedSide(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x", Elapsed: 10})
	cand := storeOf(t, "",
		results.Sample{Name: "b/x", Failed: true, Error: "b: drain at epoch 1: drain timeout"},
	)

	r := Compare(base, cand, DefaultOptions())
	require.Len(t, r.Rows, 1)
	assert.Nil(t, r.Rows[0].Candidate)
	assert.Nil(t, r.Rows[0].Speedup)
	assert.Equal(t, []string{"candidate trial failed: b: drain at epoch 1: drain timeout"}, r.Rows[0].Notes)
}

func TestCompareIgnoresFailuresWhenSuccessesExist(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x", Elapsed: 10}, results.Sample{Name: "a/x", Elapsed: 30})
	cand := storeOf(t, "",
		results.Sample{Name: "b/x", Failed: true, Error: "panic"},
		results.Sample{Name: "b/x", Elapsed: 40},
	)

	r := Compare(base, cand, DefaultOptions())
	require.NotNil(t, r.Rows[0].Speedup)
	assert.InDelta(t, 2.0, *r.Rows[0].Speedup, 1e-12)
	assert.InDelta(t, 20, *r.Rows[0].Baseline, 0)
}

func TestCompareZeroBaseline(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x"})
	cand := storeOf(t, "", results.Sample{Name: "b/x", Elapsed: 5})

	r := Compare(base, cand, DefaultOptions())
	assert.Nil(t, r.Rows[0].Speedup)
	assert.Equal(t, []string{NoteZeroBaseline}, r.Rows[0].Notes)
}

func TestCompareThroughputFlipsWording(t *testing.T) {
	base := storeOf(t, "", results.Sample{Name: "a/x", Elapsed: ms(1000), Items: 100})
	cand := storeOf(t, "", results.Sample{Name: "b/x", Elapsed: ms(500), Items: 100})

	r := Compare(base, cand, Options{Metric: MetricThroughput})
	require.NotNil(t, r.Rows[0].Speedup)
	assert.InDelta(t, 2.0, *r.Rows[0].Speedup, 1e-12)
	assert.Equal(t, []string{NoteFaster}, r.Rows[0].Notes)
	assert.Equal(t, "x", r.Summary.Fastest.Benchmark)
}

func TestCompareUsesStoreLabel(t *testing.T) {
	base := storeOf(t, "timely", results.Sample{Name: "timely/join/1000", Elapsed: 10})
	cand := storeOf(t, "", results.Sample{Name: "hydro/join/1000", Elapsed: 10})

	r := Compare(base, cand, DefaultOptions())
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "join/1000", r.Rows[0].Benchmark)
}

func TestCompareEnginesFromOneRun(t *testing.T) {
	run := []results.Sample{
		{Name: "batch/pairs", Elapsed: 100},
		{Name: "stream/pairs", Elapsed: 200},
		{Name: "batch/join/initial", Elapsed: 50},
		{Name: "stream/join/initial", Elapsed: 50},
	}

	r := Compare(storeOf(t, "batch", run...), storeOf(t, "stream", run...), DefaultOptions())
	require.Len(t, r.Rows, 2)
	assert.Empty(t, r.Warnings)

	assert.Equal(t, "join/initial", r.Rows[0].Benchmark)
	assert.Equal(t, "pairs", r.Rows[1].Benchmark)
	require.NotNil(t, r.Rows[1].Speedup)
	assert.InDelta(t, 100, *r.Rows[1].Baseline, 0)
	assert.InDelta(t, 200, *r.Rows[1].Candidate, 0)
	assert.InDelta(t, 2.0, *r.Rows[1].Speedup, 1e-12)
}

func TestCompareUnlabeledMixedStoreKeepsEngines(t *testing.T) {
	run := []results.Sample{
		{Name: "batch/pairs", Elapsed: 100},
		{Name: "stream/pairs", Elapsed: 200},
	}

	r := Compare(storeOf(t, "", run...), storeOf(t, "", run...), DefaultOptions())
	require.Len(t, r.Rows, 2, "engines are not averaged together")
	assert.Equal(t, "batch/pairs", r.Rows[0].Benchmark)
	assert.Equal(t, "stream/pairs", r.Rows[1].Benchmark)
	assert.InDelta(t, 100, *r.Rows[0].Baseline, 0)

	require.Len(t, r.Warnings, 2)
	assert.ErrorIs(t, r.Warnings[0], ErrMixedEngines)
	assert.ErrorContains(t, r.Warnings[0], "baseline has batch, stream")
}

func TestCompareUnmatchedLabelFallsBack(t *testing.T) {
	base := storeOf(t, "nightly", results.Sample{Name: "batch/pairs", Elapsed: 10})
	cand := storeOf(t, "", results.Sample{Name: "stream/pairs", Elapsed: 10})

	r := Compare(base, cand, DefaultOptions())
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "pairs", r.Rows[0].Benchmark)
}

func TestSummaryTiesFavorFirstName(t *testing.T) {
	base := storeOf(t, "",
		results.Sample{Name: "a/b", Elapsed: 10},
		results.Sample{Name: "a/a", Elapsed: 10},
		results.Sample{Name: "a/c", Elapsed: 10},
	)
	cand := storeOf(t, "",
		results.Sample{Name: "b/b", Elapsed: 20},
		results.Sample{Name: "b/a", Elapsed: 20},
		results.Sample{Name: "b/c", Elapsed: 5},
	)

	r := Compare(base, cand, DefaultOptions())
	require.NotNil(t, r.Summary)
	assert.Equal(t, 3, r.Summary.TotalCompared)
	assert.InDelta(t, 1.5, r.Summary.AverageSpeedup, 1e-12)
	assert.Equal(t, Extreme{Benchmark: "c", Speedup: 0.5}, r.Summary.Fastest)
	assert.Equal(t, Extreme{Benchmark: "a", Speedup: 2}, r.Summary.Slowest)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricElapsed, m)

	m, err = ParseMetric("throughput")
	require.NoError(t, err)
	assert.Equal(t, MetricThroughput, m)

	_, err = ParseMetric("p99")
	assert.Error(t, err)
}
