package enginetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// UnsettledTimeout bounds the drains the suite expects never to settle.
const UnsettledTimeout = 100 * time.Millisecond

// SettleTimeout bounds the drains the suite expects to settle.
const SettleTimeout = 10 * time.Second

// Run checks that adapter honors the epoch protocol: drains of unadvanced
// epochs never report data, repeated drains report nothing new, epochs
// cannot move backwards, and handles close cleanly.
func Run(t *testing.T, adapter engine.Adapter) {
	t.Helper()

	input, err := workload.Sequence(100)
	require.NoError(t, err)

	open := func(t *testing.T) engine.Handle {
		t.Helper()

		h, err := adapter.Open(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Close() })

		return h
	}

	t.Run("drain before advance reports nothing", func(t *testing.T) {
		h := open(t)

		ctx, cancel := context.WithTimeout(context.Background(), UnsettledTimeout)
		defer cancel()

		stats, err := h.Drain(ctx, 1)
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrTimeout)
		}
		assert.Zero(t, stats.Items)
	})

	t.Run("submitted but unsealed epoch reports nothing", func(t *testing.T) {
		h := open(t)
		require.NoError(t, h.Submit(input.Updates(), 1))

		ctx, cancel := context.WithTimeout(context.Background(), UnsettledTimeout)
		defer cancel()

		stats, err := h.Drain(ctx, 1)
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrTimeout)
		}
		assert.Zero(t, stats.Items)
	})

	t.Run("second drain is empty", func(t *testing.T) {
		h := open(t)
		require.NoError(t, h.Submit(input.Updates(), 1))
		require.NoError(t, h.Advance(1))

		ctx, cancel := context.WithTimeout(context.Background(), SettleTimeout)
		defer cancel()

		_, err := h.Drain(ctx, 1)
		require.NoError(t, err)

		stats, err := h.Drain(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, stats.Items)
	})

	t.Run("epochs only move forward", func(t *testing.T) {
		h := open(t)
		require.NoError(t, h.Advance(2))

		err := h.Submit(input.Updates(), 1)
		assert.True(t, errors.Is(err, engine.ErrEpochOrderViolation), "submit below frontier: %v", err)

		err = h.Advance(1)
		assert.True(t, errors.Is(err, engine.ErrEpochOrderViolation), "advance backwards: %v", err)
	})

	t.Run("later drain covers earlier epochs", func(t *testing.T) {
		h := open(t)
		require.NoError(t, h.Submit(input.Updates(), 1))
		require.NoError(t, h.Submit(input.Updates(), 2))
		require.NoError(t, h.Advance(2))

		ctx, cancel := context.WithTimeout(context.Background(), SettleTimeout)
		defer cancel()

		_, err := h.Drain(ctx, 2)
		require.NoError(t, err)

		stats, err := h.Drain(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, stats.Items, "epoch 1 settled with epoch 2")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		h, err := adapter.Open(context.Background())
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.NoError(t, h.Close())
	})
}
