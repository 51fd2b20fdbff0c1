// Package stream implements a multi-worker incremental reference engine.
// Input updates are hash-partitioned by key across worker goroutines, each
// worker owns an operator instance fed only the new deltas, and drains wait
// on a progress frontier every worker reports into.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Kind is the registry name of this adapter.
const Kind = "stream"

var errClosed = errors.New("handle closed")

// Adapter opens stream handles.
type Adapter struct {
	name    string
	op      engine.OperatorSpec
	workers int
	logger  *slog.Logger
}

// New returns a stream adapter with the given worker count. A count below
// one selects min(GOMAXPROCS, 4). Operators that cannot be partitioned by
// key always run on a single worker.
func New(name string, op engine.OperatorSpec, workers int, logger *slog.Logger) *Adapter {
	if workers < 1 {
		workers = min(runtime.GOMAXPROCS(0), 4)
	}

	if !op.Partitionable {
		workers = 1
	}

	return &Adapter{
		name:    name,
		op:      op,
		workers: workers,
		logger:  logger.With(slog.String("engine", name)),
	}
}

// Factory builds a stream adapter from a suite spec.
func Factory(spec engine.Spec, logger *slog.Logger) (engine.Adapter, error) {
	op, err := engine.ParseOperator(spec.Operator)
	if err != nil {
		return nil, err
	}

	return New(spec.Name, op, spec.Workers, logger), nil
}

func (a *Adapter) Name() string { return a.name }

// Workers returns the number of worker goroutines per handle.
func (a *Adapter) Workers() int { return a.workers }

func (a *Adapter) Open(_ context.Context) (engine.Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	h := &handle{
		adapter:     a,
		cancel:      cancel,
		group:       g,
		mailboxes:   make([]*mailbox, a.workers),
		doneThrough: make([]engine.Epoch, a.workers),
		doneAny:     make([]bool, a.workers),
		output:      make(map[engine.Epoch]int),
		changed:     make(chan struct{}),
	}

	for i := range h.mailboxes {
		mb := &mailbox{ready: make(chan struct{}, 1)}
		h.mailboxes[i] = mb

		g.Go(func() error {
			err := h.work(gctx, i, mb)
			if err != nil {
				h.fail(err)
			}

			return err
		})
	}

	a.logger.Debug("open handle",
		slog.String("operator", a.op.Name),
		slog.Int("workers", a.workers),
	)

	return h, nil
}

type message struct {
	epoch   engine.Epoch
	updates []workload.Update
	seal    bool
}

// mailbox is an unbounded queue so Submit never waits on a busy worker.
type mailbox struct {
	mu    sync.Mutex
	queue []message
	ready chan struct{}
}

func (m *mailbox) push(msg message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []message {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue
	m.queue = nil

	return q
}

type handle struct {
	adapter  *Adapter
	frontier engine.Frontier
	cancel   context.CancelFunc
	group    *errgroup.Group

	mailboxes []*mailbox
	closeOnce sync.Once
	closeErr  error

	mu          sync.Mutex
	doneThrough []engine.Epoch
	doneAny     []bool
	output      map[engine.Epoch]int
	err         error
	closed      bool
	changed     chan struct{}
}

func (h *handle) work(ctx context.Context, id int, mb *mailbox) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: worker %d: %v", engine.ErrBackendPanicked, id, r)
		}
	}()

	op := h.adapter.op.New()
	pending := make(map[engine.Epoch][]workload.Update)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-mb.ready:
		}

		for _, msg := range mb.take() {
			if !msg.seal {
				pending[msg.epoch] = append(pending[msg.epoch], msg.updates...)

				continue
			}

			epochs := make([]engine.Epoch, 0, len(pending))
			for e := range pending {
				if e <= msg.epoch {
					epochs = append(epochs, e)
				}
			}

			sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

			items := 0
			for _, e := range epochs {
				items += len(op.Step(pending[e]))
				delete(pending, e)
			}

			h.report(id, msg.epoch, items)
		}
	}
}

// report records that worker id has finished every epoch up to epoch.
func (h *handle) report(id int, epoch engine.Epoch, items int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.output[epoch] += items

	if !h.doneAny[id] || epoch > h.doneThrough[id] {
		h.doneThrough[id] = epoch
		h.doneAny[id] = true
	}

	h.broadcast()
}

func (h *handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err == nil {
		h.err = err
	}

	h.broadcast()
}

// broadcast wakes every waiting Drain. Callers hold h.mu.
func (h *handle) broadcast() {
	close(h.changed)
	h.changed = make(chan struct{})
}

func (h *handle) settled(epoch engine.Epoch) bool {
	for i := range h.doneThrough {
		if !h.doneAny[i] || h.doneThrough[i] < epoch {
			return false
		}
	}

	return true
}

func (h *handle) partition(key uint64) int {
	if len(h.mailboxes) == 1 {
		return 0
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)

	return int(murmur3.Sum64(buf[:]) % uint64(len(h.mailboxes)))
}

func (h *handle) Submit(batch []workload.Update, epoch engine.Epoch) error {
	if err := h.frontier.Submit(epoch); err != nil {
		return engine.Wrap(h.adapter.name, "submit", epoch, err)
	}

	if h.isClosed() {
		return engine.Wrap(h.adapter.name, "submit", epoch, errClosed)
	}

	parts := make([][]workload.Update, len(h.mailboxes))
	for _, u := range batch {
		p := h.partition(u.Key)
		parts[p] = append(parts[p], u)
	}

	for i, part := range parts {
		if len(part) > 0 {
			h.mailboxes[i].push(message{epoch: epoch, updates: part})
		}
	}

	return nil
}

func (h *handle) Advance(epoch engine.Epoch) error {
	if err := h.frontier.Advance(epoch); err != nil {
		return engine.Wrap(h.adapter.name, "advance", epoch, err)
	}

	if h.isClosed() {
		return engine.Wrap(h.adapter.name, "advance", epoch, errClosed)
	}

	for _, mb := range h.mailboxes {
		mb.push(message{epoch: epoch, seal: true})
	}

	return nil
}

func (h *handle) Drain(ctx context.Context, epoch engine.Epoch) (engine.DrainStats, error) {
	if h.frontier.Drained(epoch) {
		return engine.DrainStats{}, nil
	}

	for {
		h.mu.Lock()

		if h.err != nil {
			err := h.err
			h.mu.Unlock()

			return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch, err)
		}

		if h.closed {
			h.mu.Unlock()

			return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch, errClosed)
		}

		if h.frontier.Sealed(epoch) && h.settled(epoch) {
			items := 0
			for e, n := range h.output {
				if e <= epoch {
					items += n
					delete(h.output, e)
				}
			}

			h.frontier.MarkDrained(epoch)
			h.mu.Unlock()

			return engine.DrainStats{Items: items}, nil
		}

		changed := h.changed
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return engine.DrainStats{}, engine.Wrap(h.adapter.name, "drain", epoch,
				engine.WaitError(ctx, epoch))
		case <-changed:
		}
	}
}

func (h *handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

// Close stops every worker and waits for them to exit. It returns the
// first worker failure, if any.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.broadcast()
		h.mu.Unlock()

		h.cancel()

		if err := h.group.Wait(); err != nil {
			h.closeErr = engine.Wrap(h.adapter.name, "close", 0, err)
		}

		h.adapter.logger.Debug("handle closed")
	})

	return h.closeErr
}
