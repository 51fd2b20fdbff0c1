// Package engine defines the contract a dataflow backend implements to be
// benchmarked: accept batched input tagged with a logical epoch, seal
// epochs, and block until a sealed epoch's output has drained.
package engine

import (
	"context"

	"github.com/weiihann/flowbench/workload"
)

// Epoch is a logical timestamp marking a batch boundary.
type Epoch uint64

// DrainStats reports the output observed by a Drain call.
type DrainStats struct {
	// Items is the number of output items newly observed for the drained
	// epoch and all epochs before it.
	Items int
}

// Adapter constructs handles for one backend configuration.
type Adapter interface {
	// Name is the engine label used to prefix benchmark names.
	Name() string

	// Open creates a fresh handle for a single trial.
	Open(ctx context.Context) (Handle, error)
}

// Handle is a backend session owned by exactly one trial.
//
// Submit and Advance must not block on downstream computation. Drain is
// the only call allowed to block; it returns once every epoch up to and
// including the requested one has settled, or with ErrTimeout when ctx
// expires first. Draining an epoch that was already drained returns zero
// items.
type Handle interface {
	Submit(batch []workload.Update, epoch Epoch) error
	Advance(epoch Epoch) error
	Drain(ctx context.Context, epoch Epoch) (DrainStats, error)
	Close() error
}
