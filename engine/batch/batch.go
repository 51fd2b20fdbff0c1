// Package batch implements a recompute-from-scratch reference engine. Every
// drain rebuilds the operator and replays all sealed input through it, the
// way a non-incremental batch system answers each new epoch.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Kind is the registry name of this adapter.
const Kind = "batch"

var errClosed = errors.New("handle closed")

// Adapter opens batch handles running one operator.
type Adapter struct {
	name   string
	op     engine.OperatorSpec
	logger *slog.Logger
}

// New returns a batch adapter labeled name.
func New(name string, op engine.OperatorSpec, logger *slog.Logger) *Adapter {
	return &Adapter{
		name:   name,
		op:     op,
		logger: logger.With(slog.String("engine", name)),
	}
}

// Factory builds a batch adapter from a suite spec.
func Factory(spec engine.Spec, logger *slog.Logger) (engine.Adapter, error) {
	op, err := engine.ParseOperator(spec.Operator)
	if err != nil {
		return nil, err
	}

	return New(spec.Name, op, logger), nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Open(_ context.Context) (engine.Handle, error) {
	a.logger.Debug("open handle", slog.String("operator", a.op.Name))

	return &handle{
		adapter: a,
		pending: make(map[engine.Epoch][]workload.Update),
	}, nil
}

type handle struct {
	adapter  *Adapter
	frontier engine.Frontier

	mu      sync.Mutex
	pending map[engine.Epoch][]workload.Update
	history []workload.Update
	closed  bool
}

func (h *handle) Submit(batch []workload.Update, epoch engine.Epoch) error {
	if err := h.frontier.Submit(epoch); err != nil {
		return engine.Wrap(h.adapter.name, "submit", epoch, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return engine.Wrap(h.adapter.name, "submit", epoch, errClosed)
	}

	h.pending[epoch] = append(h.pending[epoch], batch...)

	return nil
}

func (h *handle) Advance(epoch engine.Epoch) error {
	return engine.Wrap(h.adapter.name, "advance", epoch, h.frontier.Advance(epoch))
}

func (h *handle) Drain(ctx context.Context, epoch engine.Epoch) (engine.DrainStats, error) {
	if h.frontier.Drained(epoch) {
		return engine.DrainStats{}, nil
	}

	if !h.frontier.Sealed(epoch) {
		<-ctx.Done()

		return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch,
			engine.WaitError(ctx, epoch))
	}

	if err := ctx.Err(); err != nil {
		return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch,
			engine.WaitError(ctx, epoch))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch, errClosed)
	}

	epochs := make([]engine.Epoch, 0, len(h.pending))
	for e := range h.pending {
		if e <= epoch {
			epochs = append(epochs, e)
		}
	}

	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	for _, e := range epochs {
		h.history = append(h.history, h.pending[e]...)
		delete(h.pending, e)
	}

	out := h.adapter.op.New().Step(h.history)
	h.frontier.MarkDrained(epoch)

	return engine.DrainStats{Items: len(out)}, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.pending = nil
	h.history = nil

	return nil
}
