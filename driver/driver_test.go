package driver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/engine/enginetest"
	"github.com/weiihann/flowbench/results"
	"github.com/weiihann/flowbench/workload"
)

func sequenceCase(t testing.TB, n int) Case {
	t.Helper()

	wl, err := workload.Sequence(n)
	require.NoError(t, err)

	return Case{Name: wl.Name(), Workload: wl}
}

func deltaCase(t testing.TB, n, size int) Case {
	t.Helper()

	c := sequenceCase(t, n)

	delta, err := workload.Delta(c.Workload, size, workload.DeltaGrowth, 1)
	require.NoError(t, err)

	c.Name += "/growth"
	c.Delta = &delta

	return c
}

func TestTrialSinglePhase(t *testing.T) {
	d := New(Config{})
	mock := enginetest.NewMock("mock", 1, 0)

	samples, err := d.Trial(context.Background(), sequenceCase(t, 100), mock)
	require.NoError(t, err)
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, "mock/sequence/100", s.Name)
	assert.Equal(t, "mock", s.Engine)
	assert.Equal(t, 100, s.Items)
	assert.False(t, s.Failed)
	assert.Positive(t, s.Elapsed)
	assert.Equal(t, 1, mock.Closed())
}

func TestTrialMultiPhase(t *testing.T) {
	d := New(Config{})
	mock := enginetest.NewMock("mock", 1, 0)

	samples, err := d.Trial(context.Background(), deltaCase(t, 100, 10), mock)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "mock/sequence/100/growth/initial", samples[0].Name)
	assert.Equal(t, 100, samples[0].Items)
	assert.Equal(t, "mock/sequence/100/growth/incremental", samples[1].Name)
	assert.Equal(t, 10, samples[1].Items)
}

func TestRecoverableFailures(t *testing.T) {
	tests := []struct {
		name  string
		fault enginetest.Fault
		want  string
	}{
		{"hang", enginetest.FaultHang, "timeout"},
		{"panic", enginetest.FaultPanic, "panicked"},
		{"crash", enginetest.FaultCrash, "injected crash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{DrainTimeout: 50 * time.Millisecond})

			faulty := enginetest.NewMock("faulty", 1, 0)
			faulty.Fault = tt.fault
			faulty.FaultEpoch = 1
			healthy := enginetest.NewMock("healthy", 1, 0)

			err := d.Run(context.Background(),
				[]Case{deltaCase(t, 50, 5)},
				[]engine.Adapter{faulty, healthy},
			)
			require.NoError(t, err, "recoverable failures do not stop the run")

			all := d.Store().All()
			require.Len(t, all, 4)

			assert.True(t, all[0].Failed)
			assert.Contains(t, strings.ToLower(all[0].Error), tt.want)
			assert.Zero(t, all[0].Elapsed)
			assert.True(t, all[1].Failed, "later phases fail with the first")
			assert.Contains(t, all[1].Error, "skipped")

			assert.False(t, all[2].Failed)
			assert.False(t, all[3].Failed)
			assert.Equal(t, faulty.Opened(), faulty.Closed(), "handle closed after failure")
		})
	}
}

type orderAdapter struct{}

func (orderAdapter) Name() string { return "order" }

func (orderAdapter) Open(context.Context) (engine.Handle, error) { return orderHandle{}, nil }

type orderHandle struct{}

func (orderHandle) Submit([]workload.Update, engine.Epoch) error {
	return engine.ErrEpochOrderViolation
}
func (orderHandle) Advance(engine.Epoch) error { return nil }
func (orderHandle) Drain(context.Context, engine.Epoch) (engine.DrainStats, error) {
	return engine.DrainStats{}, nil
}
func (orderHandle) Close() error { return nil }

func TestOrderViolationIsFatal(t *testing.T) {
	d := New(Config{})
	after := enginetest.NewMock("after", 1, 0)

	err := d.Run(context.Background(),
		[]Case{sequenceCase(t, 10)},
		[]engine.Adapter{orderAdapter{}, after},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrEpochOrderViolation)
	assert.Zero(t, after.Opened(), "run stops at the fatal trial")
}

func TestFixtureMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cases:
  sequence/10:
    full: 10
engines:
  liar:
    sequence/10:
      full: 11
`), 0o644))

	fixture, err := LoadFixture(path)
	require.NoError(t, err)

	n, ok := fixture.Expected("mock", "sequence/10", PhaseFull)
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = fixture.Expected("mock", "sequence/10", PhaseInitial)
	assert.False(t, ok)

	d := New(Config{Fixture: fixture})

	require.NoError(t, d.Run(context.Background(),
		[]Case{sequenceCase(t, 10)},
		[]engine.Adapter{enginetest.NewMock("mock", 1, 0), enginetest.NewMock("liar", 1, 0)},
	))

	all := d.Store().All()
	require.Len(t, all, 2)
	assert.False(t, all[0].Failed)
	assert.True(t, all[1].Failed)
	assert.Contains(t, all[1].Error, "output mismatch")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	hang := enginetest.NewMock("hang", 1, 0)
	hang.Fault = enginetest.FaultHang

	d := New(Config{Metrics: m, DrainTimeout: 20 * time.Millisecond})

	require.NoError(t, d.Run(context.Background(),
		[]Case{sequenceCase(t, 10), sequenceCase(t, 20)},
		[]engine.Adapter{enginetest.NewMock("ok", 1, 0), hang},
	))

	assert.InDelta(t, 2, testutil.ToFloat64(m.trials.WithLabelValues("ok", outcomeOK)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.trials.WithLabelValues("hang", outcomeFailed)), 0)
	assert.InDelta(t, 30, testutil.ToFloat64(m.drained.WithLabelValues("ok")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.phase))
}

func TestBody(t *testing.T) {
	d := New(Config{})
	c := deltaCase(t, 100, 10)
	mock := enginetest.NewMock("mock", 1, 0)

	body, err := d.Body(c, mock, PhaseIncremental)
	require.NoError(t, err)

	sample, err := body(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock/sequence/100/growth/incremental", sample.Name)
	assert.Equal(t, 10, sample.Items)
	assert.Zero(t, d.Store().Len(), "bodies do not record")

	_, err = d.Body(c, mock, PhaseFull)
	assert.Error(t, err)
}

// stopwatch is a timer that accumulates the time it spends running.
type stopwatch struct {
	running bool
	since   time.Time
	total   time.Duration
}

func (w *stopwatch) StartTimer() {
	if !w.running {
		w.running = true
		w.since = time.Now()
	}
}

func (w *stopwatch) StopTimer() {
	if w.running {
		w.running = false
		w.total += time.Since(w.since)
	}
}

func TestBodyStopsTimerAroundSetup(t *testing.T) {
	d := New(Config{})
	c := deltaCase(t, 1000, 10)
	mock := enginetest.NewMock("mock", 1, 20*time.Microsecond)

	clock := &stopwatch{}
	body, err := d.body(c, mock, PhaseIncremental, clock)
	require.NoError(t, err)

	clock.StartTimer()
	sample, err := body(context.Background())
	clock.StopTimer()
	require.NoError(t, err)

	// The initial phase drains 1000 items at 20µs each; the delta only 10.
	assert.Less(t, clock.total, 10*time.Millisecond, "initial phase was timed")
	assert.LessOrEqual(t, sample.Elapsed, clock.total)
	assert.Equal(t, 1, mock.Closed())
}

type closeErrAdapter struct{ enginetest.Mock }

func (a *closeErrAdapter) Open(ctx context.Context) (engine.Handle, error) {
	h, err := a.Mock.Open(ctx)
	if err != nil {
		return nil, err
	}

	return closeErrHandle{h}, nil
}

type closeErrHandle struct{ engine.Handle }

func (h closeErrHandle) Close() error {
	_ = h.Handle.Close()

	return errors.New("worker leaked")
}

func TestBodyLogsCloseError(t *testing.T) {
	var logs strings.Builder

	d := New(Config{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	a := &closeErrAdapter{Mock: enginetest.Mock{Label: "leaky", Factor: 1}}

	body, err := d.Body(sequenceCase(t, 10), a, PhaseFull)
	require.NoError(t, err)

	_, err = body(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "worker leaked")
}

type brokenAdapter struct{}

func (brokenAdapter) Name() string { return "broken" }

func (brokenAdapter) Open(context.Context) (engine.Handle, error) {
	return nil, errors.New("exec: harness not found")
}

func TestOpenFailureRecordsFailedSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := New(Config{Metrics: NewMetrics(reg)})
	c := deltaCase(t, 20, 5)
	after := enginetest.NewMock("after", 1, 0)

	err := d.Run(context.Background(), []Case{c}, []engine.Adapter{brokenAdapter{}, after})
	require.NoError(t, err, "open failure does not stop the run")

	broken := d.Store().ByEngine("broken")
	require.Len(t, broken, 2)

	for _, s := range broken {
		assert.True(t, s.Failed)
		assert.Contains(t, s.Error, engine.ErrBackendPanicked.Error())
		assert.Contains(t, s.Error, "harness not found")
	}

	assert.Equal(t, 1, after.Opened(), "later adapters still run")
	assert.InDelta(t, 2, testutil.ToFloat64(d.metrics.trials.WithLabelValues("broken", outcomeFailed)), 0)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(Config{}).Run(ctx, []Case{sequenceCase(t, 1)}, []engine.Adapter{enginetest.NewMock("m", 1, 0)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRecordsIntoProvidedStore(t *testing.T) {
	store := results.NewStore("nightly")
	d := New(Config{Store: store})

	require.NoError(t, d.Run(context.Background(),
		[]Case{sequenceCase(t, 5)},
		[]engine.Adapter{enginetest.NewMock("m", 1, 0)},
	))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, store.RunID(), store.All()[0].RunID)
}

func BenchmarkMatrix(b *testing.B) {
	cases := []Case{sequenceCase(b, 1000), deltaCase(b, 1000, 100)}
	adapters := []engine.Adapter{
		enginetest.NewMock("fast", 1, time.Microsecond),
		enginetest.NewMock("slow", 2, time.Microsecond),
	}

	New(Config{}).Benchmark(b, cases, adapters)
}
