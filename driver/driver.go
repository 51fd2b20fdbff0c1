// Package driver runs benchmark trials: it feeds a case's workload through
// an engine adapter epoch by epoch, times each phase, and records the
// resulting samples.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/results"
	"github.com/weiihann/flowbench/workload"
)

// DefaultDrainTimeout bounds a single drain.
const DefaultDrainTimeout = 30 * time.Second

// Phase names one timed section of a trial.
type Phase string

const (
	// PhaseFull is the only phase of a single-phase case.
	PhaseFull        Phase = "full"
	PhaseInitial     Phase = "initial"
	PhaseIncremental Phase = "incremental"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// errOutputMismatch marks a phase whose drained output disagreed with the
// fixture.
var errOutputMismatch = errors.New("output mismatch")

// Case is one workload to benchmark. A case with a Delta is multi-phase:
// the workload is loaded in epoch 1 and the delta applied in epoch 2.
type Case struct {
	Name     string
	Workload workload.Workload
	Delta    *workload.Workload
}

// Phases returns the phases a trial of c runs, in order.
func (c Case) Phases() []Phase {
	if c.Delta != nil {
		return []Phase{PhaseInitial, PhaseIncremental}
	}

	return []Phase{PhaseFull}
}

// SampleName is the recorded benchmark name for one phase.
func (c Case) SampleName(engineName string, phase Phase) string {
	if phase == PhaseFull {
		return engineName + "/" + c.Name
	}

	return engineName + "/" + c.Name + "/" + string(phase)
}

func (c Case) input(phase Phase) ([]workload.Update, engine.Epoch) {
	if phase == PhaseIncremental {
		return c.Delta.Updates(), 2
	}

	return c.Workload.Updates(), 1
}

// Config configures a Driver.
type Config struct {
	DrainTimeout time.Duration
	Fixture      *Fixture
	// Store receives every sample Run produces. A fresh store is created
	// when nil.
	Store   *results.Store
	Metrics *Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Driver runs trials sequentially on the calling goroutine.
type Driver struct {
	drainTimeout time.Duration
	fixture      *Fixture
	store        *results.Store
	metrics      *Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// New creates a Driver.
func New(cfg Config) *Driver {
	d := &Driver{
		drainTimeout: cfg.DrainTimeout,
		fixture:      cfg.Fixture,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		logger:       cfg.Logger,
	}

	if d.drainTimeout <= 0 {
		d.drainTimeout = DefaultDrainTimeout
	}

	if d.store == nil {
		d.store = results.NewStore("")
	}

	if d.tracer == nil {
		d.tracer = otel.Tracer("github.com/weiihann/flowbench/driver")
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d
}

// Store returns the store Run records into.
func (d *Driver) Store() *results.Store { return d.store }

// Run benchmarks every case against every adapter, cases outer, and
// records each sample. Recoverable backend failures become failed samples;
// any other error stops the run.
func (d *Driver) Run(ctx context.Context, cases []Case, adapters []engine.Adapter) error {
	for _, c := range cases {
		for _, a := range adapters {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}

			samples, err := d.Trial(ctx, c, a)

			for _, s := range samples {
				if recErr := d.store.Record(s); recErr != nil {
					return fmt.Errorf("record %s: %w", s.Name, recErr)
				}
			}

			if err != nil {
				return fmt.Errorf("trial %s on %s: %w", c.Name, a.Name(), err)
			}
		}
	}

	return nil
}

// Trial runs every phase of c on a fresh handle from a and returns one
// sample per phase. A handle that cannot be opened, or a phase that fails
// recoverably, turns the affected phases into failed samples. Other errors
// are returned along with the samples gathered so far.
func (d *Driver) Trial(ctx context.Context, c Case, a engine.Adapter) ([]results.Sample, error) {
	ctx, span := d.tracer.Start(ctx, "flowbench.trial",
		trace.WithAttributes(
			attribute.String("engine", a.Name()),
			attribute.String("case", c.Name),
		),
	)
	defer span.End()

	logger := d.logger.With(slog.String("engine", a.Name()), slog.String("case", c.Name))

	phases := c.Phases()

	h, err := a.Open(ctx)
	if err != nil {
		err = engine.Wrap(a.Name(), "open", 0, fmt.Errorf("%w: %v", engine.ErrBackendPanicked, err))

		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		logger.Warn("open failed", slog.String("error", err.Error()))

		samples := make([]results.Sample, 0, len(phases))
		for _, phase := range phases {
			d.metrics.observe(a.Name(), phase, outcomeFailed, 0, 0)
			samples = append(samples, results.Sample{
				Engine: a.Name(),
				Name:   c.SampleName(a.Name(), phase),
				Failed: true,
				Error:  err.Error(),
			})
		}

		return samples, nil
	}

	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("close handle", slog.String("error", err.Error()))
		}
	}()

	samples := make([]results.Sample, 0, len(phases))

	for i, phase := range phases {
		sample, err := d.phase(ctx, h, c, a.Name(), phase, logger)
		if err == nil {
			samples = append(samples, sample)

			continue
		}

		span.RecordError(err)

		if !engine.Recoverable(err) && !errors.Is(err, errOutputMismatch) {
			span.SetStatus(codes.Error, "trial aborted")

			return samples, err
		}

		span.SetStatus(codes.Error, "trial failed")
		samples = append(samples, sample)

		for _, rest := range phases[i+1:] {
			d.metrics.observe(a.Name(), rest, outcomeFailed, 0, 0)
			samples = append(samples, results.Sample{
				Engine: a.Name(),
				Name:   c.SampleName(a.Name(), rest),
				Failed: true,
				Error:  fmt.Sprintf("skipped after %s failed: %v", phase, err),
			})
		}

		break
	}

	return samples, nil
}

// phase runs one timed phase on h. On a recoverable failure it returns a
// failed sample alongside the error.
func (d *Driver) phase(
	ctx context.Context,
	h engine.Handle,
	c Case,
	engineName string,
	phase Phase,
	logger *slog.Logger,
) (results.Sample, error) {
	ctx, span := d.tracer.Start(ctx, "flowbench.phase",
		trace.WithAttributes(attribute.String("phase", string(phase))),
	)
	defer span.End()

	batch, epoch := c.input(phase)
	sample := results.Sample{
		Engine: engineName,
		Name:   c.SampleName(engineName, phase),
		Items:  len(batch),
	}

	drainCtx, cancel := context.WithTimeout(ctx, d.drainTimeout)
	defer cancel()

	var stats engine.DrainStats

	start := time.Now()

	err := engine.Guard(engineName, "submit", epoch, func() error {
		return h.Submit(batch, epoch)
	})
	if err == nil {
		err = engine.Guard(engineName, "advance", epoch, func() error {
			return h.Advance(epoch)
		})
	}

	if err == nil {
		err = engine.Guard(engineName, "drain", epoch, func() error {
			var drainErr error
			stats, drainErr = h.Drain(drainCtx, epoch)

			return drainErr
		})
	}

	sample.Elapsed = time.Since(start)

	if err == nil {
		if want, ok := d.fixture.Expected(engineName, c.Name, phase); ok && want != stats.Items {
			err = fmt.Errorf("%w: drained %d items, want %d", errOutputMismatch, stats.Items, want)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.observe(engineName, phase, outcomeFailed, 0, 0)

		logger.Warn("phase failed",
			slog.String("phase", string(phase)),
			slog.String("error", err.Error()),
		)

		sample.Failed = true
		sample.Error = err.Error()
		sample.Elapsed = 0

		return sample, err
	}

	d.metrics.observe(engineName, phase, outcomeOK, sample.Elapsed.Seconds(), stats.Items)

	logger.Info("phase finished",
		slog.String("phase", string(phase)),
		slog.Duration("elapsed", sample.Elapsed),
		slog.Int("items", sample.Items),
		slog.Int("drained", stats.Items),
	)

	return sample, nil
}
