package batch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/engine/enginetest"
	"github.com/weiihann/flowbench/workload"
)

func newAdapter(t *testing.T, operator string) *Adapter {
	t.Helper()

	op, err := engine.ParseOperator(operator)
	require.NoError(t, err)

	return New("batch", op, slog.Default())
}

func TestConformance(t *testing.T) {
	enginetest.Run(t, newAdapter(t, "identity"))
}

func TestDrainRecomputesFullOutput(t *testing.T) {
	h, err := newAdapter(t, "identity").Open(context.Background())
	require.NoError(t, err)
	defer h.Close()

	base, err := workload.Sequence(50)
	require.NoError(t, err)
	delta, err := workload.Delta(base, 10, workload.DeltaGrowth, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.Submit(base.Updates(), 1))
	require.NoError(t, h.Advance(1))
	stats, err := h.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Items)

	require.NoError(t, h.Submit(delta.Updates(), 2))
	require.NoError(t, h.Advance(2))
	stats, err = h.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 60, stats.Items, "batch replays all sealed history")
}

func TestClosedHandleRejectsWork(t *testing.T) {
	h, err := newAdapter(t, "identity").Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	err = h.Submit(nil, 1)
	assert.ErrorContains(t, err, "handle closed")
}

func TestFactoryRejectsUnknownOperator(t *testing.T) {
	_, err := Factory(engine.Spec{Name: "b", Kind: Kind, Operator: "join"}, slog.Default())
	assert.Error(t, err)

	a, err := Factory(engine.Spec{Name: "b", Kind: Kind, Operator: "count"}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "b", a.Name())
}
