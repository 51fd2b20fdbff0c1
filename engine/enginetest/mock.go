// Package enginetest provides a configurable mock adapter and a protocol
// conformance suite for engine adapters.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Fault selects a failure the mock injects into Drain.
type Fault int

const (
	FaultNone Fault = iota
	// FaultPanic panics inside Drain.
	FaultPanic
	// FaultHang never settles, so Drain runs into its deadline.
	FaultHang
	// FaultCrash returns ErrBackendPanicked from Drain.
	FaultCrash
)

// Mock is an identity engine whose drain cost is proportional to the
// number of pending input items: Factor * PerItem per item.
type Mock struct {
	Label   string
	Factor  float64
	PerItem time.Duration
	Fault   Fault
	// FaultEpoch restricts the fault to one epoch; zero applies it to all.
	FaultEpoch engine.Epoch

	opened atomic.Int64
	closed atomic.Int64
}

// NewMock returns a fault-free mock.
func NewMock(label string, factor float64, perItem time.Duration) *Mock {
	return &Mock{Label: label, Factor: factor, PerItem: perItem}
}

func (m *Mock) Name() string { return m.Label }

// Opened returns the number of handles opened.
func (m *Mock) Opened() int { return int(m.opened.Load()) }

// Closed returns the number of handles closed.
func (m *Mock) Closed() int { return int(m.closed.Load()) }

func (m *Mock) Open(context.Context) (engine.Handle, error) {
	m.opened.Add(1)

	return &mockHandle{mock: m, pending: make(map[engine.Epoch]int)}, nil
}

type mockHandle struct {
	mock     *Mock
	frontier engine.Frontier

	mu      sync.Mutex
	pending map[engine.Epoch]int
	once    sync.Once
}

func (h *mockHandle) Submit(batch []workload.Update, epoch engine.Epoch) error {
	if err := h.frontier.Submit(epoch); err != nil {
		return engine.Wrap(h.mock.Label, "submit", epoch, err)
	}

	h.mu.Lock()
	h.pending[epoch] += len(batch)
	h.mu.Unlock()

	return nil
}

func (h *mockHandle) Advance(epoch engine.Epoch) error {
	return engine.Wrap(h.mock.Label, "advance", epoch, h.frontier.Advance(epoch))
}

func (h *mockHandle) faulty(epoch engine.Epoch) bool {
	return h.mock.Fault != FaultNone &&
		(h.mock.FaultEpoch == 0 || h.mock.FaultEpoch == epoch)
}

func (h *mockHandle) Drain(ctx context.Context, epoch engine.Epoch) (engine.DrainStats, error) {
	if h.frontier.Drained(epoch) {
		return engine.DrainStats{}, nil
	}

	if h.faulty(epoch) {
		switch h.mock.Fault {
		case FaultPanic:
			panic(fmt.Sprintf("mock %s: injected panic at epoch %d", h.mock.Label, epoch))
		case FaultCrash:
			return engine.DrainStats{}, engine.Wrap(h.mock.Label, "drain", epoch,
				fmt.Errorf("%w: injected crash", engine.ErrBackendPanicked))
		case FaultHang:
			<-ctx.Done()

			return engine.DrainStats{}, engine.Wrap(h.mock.Label, "drain", epoch,
				engine.WaitError(ctx, epoch))
		}
	}

	if !h.frontier.Sealed(epoch) {
		<-ctx.Done()

		return engine.DrainStats{}, engine.Wrap(h.mock.Label, "drain", epoch,
			engine.WaitError(ctx, epoch))
	}

	h.mu.Lock()
	items := 0
	for e, n := range h.pending {
		if e <= epoch {
			items += n
			delete(h.pending, e)
		}
	}
	h.mu.Unlock()

	cost := time.Duration(float64(items) * h.mock.Factor * float64(h.mock.PerItem))
	if cost > 0 {
		timer := time.NewTimer(cost)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return engine.DrainStats{}, engine.Wrap(h.mock.Label, "drain", epoch,
				engine.WaitError(ctx, epoch))
		case <-timer.C:
		}
	}

	h.frontier.MarkDrained(epoch)

	return engine.DrainStats{Items: items}, nil
}

func (h *mockHandle) Close() error {
	h.once.Do(func() { h.mock.closed.Add(1) })

	return nil
}
