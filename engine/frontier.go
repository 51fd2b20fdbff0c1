package engine

import (
	"fmt"
	"sync"
)

// Frontier tracks the sealed and drained epochs of a handle and enforces
// that epochs only move forward.
type Frontier struct {
	mu       sync.Mutex
	advanced bool
	sealed   Epoch
	drained  Epoch
	anyDrain bool
}

// Submit checks that input may still arrive at epoch.
func (f *Frontier) Submit(epoch Epoch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.advanced && epoch <= f.sealed {
		return fmt.Errorf("%w: submit at epoch %d, already sealed through %d",
			ErrEpochOrderViolation, epoch, f.sealed)
	}

	return nil
}

// Advance seals every epoch up to and including epoch. Advancing to the
// current frontier again is a no-op.
func (f *Frontier) Advance(epoch Epoch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.advanced && epoch < f.sealed {
		return fmt.Errorf("%w: advance to epoch %d, already sealed through %d",
			ErrEpochOrderViolation, epoch, f.sealed)
	}

	f.advanced = true
	f.sealed = epoch

	return nil
}

// Sealed reports whether epoch has been advanced past.
func (f *Frontier) Sealed(epoch Epoch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.advanced && epoch <= f.sealed
}

// Frontier returns the highest sealed epoch and whether any epoch has been
// sealed.
func (f *Frontier) Frontier() (Epoch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sealed, f.advanced
}

// Drained reports whether epoch has already been drained.
func (f *Frontier) Drained(epoch Epoch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.anyDrain && epoch <= f.drained
}

// MarkDrained records that every epoch up to epoch has been drained.
func (f *Frontier) MarkDrained(epoch Epoch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.anyDrain || epoch > f.drained {
		f.drained = epoch
		f.anyDrain = true
	}
}
