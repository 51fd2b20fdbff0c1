package engine

import (
	"context"
	"errors"
	"fmt"
)

// Adapter failure classes.
var (
	ErrBackendPanicked     = errors.New("backend panicked")
	ErrEpochOrderViolation = errors.New("epoch order violation")
	ErrTimeout             = errors.New("drain timeout")
)

// Error records which engine operation failed and at which epoch.
type Error struct {
	Engine string
	Op     string
	Epoch  Epoch
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s at epoch %d: %v", e.Engine, e.Op, e.Epoch, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches engine context to err. It returns nil for a nil err and
// leaves an existing *Error untouched.
func Wrap(engine, op string, epoch Epoch, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return &Error{Engine: engine, Op: op, Epoch: epoch, Err: err}
}

// Recoverable reports whether a trial that failed with err may be recorded
// as a failed sample while the benchmark run continues.
func Recoverable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBackendPanicked)
}

// Guard runs fn and converts a panic into ErrBackendPanicked.
func Guard(engine, op string, epoch Epoch, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Engine: engine,
				Op:     op,
				Epoch:  epoch,
				Err:    fmt.Errorf("%w: %v", ErrBackendPanicked, r),
			}
		}
	}()

	return Wrap(engine, op, epoch, fn())
}

// WaitError maps a finished context to ErrTimeout.
func WaitError(ctx context.Context, epoch Epoch) error {
	return fmt.Errorf("%w: epoch %d not settled: %v", ErrTimeout, epoch, context.Cause(ctx))
}
