package results

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecordStamps(t *testing.T) {
	s := NewStore("nightly")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Record(Sample{Name: "timely/join/1000", Elapsed: time.Millisecond, Items: 1000}))

	got := s.All()
	require.Len(t, got, 1)
	assert.Equal(t, "timely", got[0].Engine)
	assert.Equal(t, s.RunID(), got[0].RunID)
	assert.Equal(t, fixed, got[0].RecordedAt)
	assert.NotEmpty(t, s.RunID())
	assert.Equal(t, "nightly", s.Label())
}

func TestStoreSeal(t *testing.T) {
	s := NewStore("")
	require.NoError(t, s.Record(Sample{Name: "a/x"}))

	s.Seal()
	assert.True(t, s.Sealed())
	assert.ErrorIs(t, s.Record(Sample{Name: "a/y"}), ErrSealed)
	assert.Equal(t, 1, s.Len())
}

func TestStoreByPrefix(t *testing.T) {
	s := NewStore("")
	for _, name := range []string{"timely/a", "hydro/a", "timely/b", "timely/c"} {
		require.NoError(t, s.Record(Sample{Name: name}))
	}

	seq := s.ByPrefix("timely/")

	var names []string
	for sample := range seq {
		names = append(names, sample.Name)
	}
	assert.Equal(t, []string{"timely/a", "timely/b", "timely/c"}, names)

	// Restartable, and stopping early is allowed.
	var first []string
	for sample := range seq {
		first = append(first, sample.Name)
		break
	}
	assert.Equal(t, []string{"timely/a"}, first)
	assert.Len(t, slices.Collect(seq), 3)
}

func TestStoreEngines(t *testing.T) {
	s := NewStore("")
	for _, name := range []string{"timely/a", "hydro/a", "timely/b"} {
		require.NoError(t, s.Record(Sample{Name: name}))
	}

	assert.Equal(t, []string{"hydro", "timely"}, s.Engines())
	assert.Len(t, s.ByEngine("timely"), 2)
	assert.Empty(t, s.ByEngine("differential"))
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewStore("")
	require.NoError(t, s.Record(Sample{Name: "a/x", Items: 1}))

	all := s.All()
	all[0].Items = 99
	assert.Equal(t, 1, s.All()[0].Items)
}

func TestThroughput(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   float64
		ok     bool
	}{
		{"normal", Sample{Elapsed: time.Second / 2, Items: 100}, 200, true},
		{"failed", Sample{Elapsed: time.Second, Items: 100, Failed: true}, 0, false},
		{"zero elapsed", Sample{Items: 100}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.sample.Throughput()
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{Engine: "b", Name: "b/x", Elapsed: 10 * time.Millisecond, Items: 10},
		{Engine: "a", Name: "a/x", Elapsed: 1 * time.Millisecond},
		{Engine: "a", Name: "a/x", Elapsed: 3 * time.Millisecond},
		{Engine: "a", Name: "a/x", Elapsed: 2 * time.Millisecond},
		{Engine: "a", Name: "a/x", Failed: true, Error: "timeout"},
		{Engine: "c", Name: "c/x", Failed: true},
	}

	stats := Summarize(samples)
	require.Len(t, stats, 3)

	a := stats[0]
	assert.Equal(t, "a/x", a.Name)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 2*time.Millisecond, a.Mean)
	assert.Equal(t, 2*time.Millisecond, a.Median)
	assert.Equal(t, time.Millisecond, a.Min)
	assert.Equal(t, 3*time.Millisecond, a.Max)
	// sd = 1ms, stderr = 1ms / sqrt(3)
	assert.InDelta(t, float64(time.Millisecond)/1.7320508, float64(a.StdErr), 1000)
	assert.Zero(t, a.Throughput)

	assert.InDelta(t, 1000, stats[1].Throughput, 1e-6)
	assert.Zero(t, stats[2].Count)

	fastest, slowest, ok := Extremes(stats)
	require.True(t, ok)
	assert.Equal(t, "a/x", fastest.Name)
	assert.Equal(t, "b/x", slowest.Name)

	_, _, ok = Extremes(nil)
	assert.False(t, ok)
}
