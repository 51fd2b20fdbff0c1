package driver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"testing"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/results"
)

// TrialBody runs one timed phase of one case and returns its sample.
type TrialBody func(ctx context.Context) (results.Sample, error)

// Body returns a body that opens a fresh handle, runs every phase before
// phase untimed, and returns the sample of phase itself. Bodies never
// retry and never record into the driver's store.
func (d *Driver) Body(c Case, a engine.Adapter, phase Phase) (TrialBody, error) {
	return d.body(c, a, phase, nil)
}

// timer pauses and resumes an external clock around untimed work.
type timer interface {
	StopTimer()
	StartTimer()
}

func (d *Driver) body(c Case, a engine.Adapter, phase Phase, clock timer) (TrialBody, error) {
	phases := c.Phases()

	idx := slices.Index(phases, phase)
	if idx < 0 {
		return nil, fmt.Errorf("case %s has no %s phase", c.Name, phase)
	}

	logger := d.logger.With(slog.String("engine", a.Name()), slog.String("case", c.Name))

	return func(ctx context.Context) (results.Sample, error) {
		if clock != nil {
			clock.StopTimer()
		}

		h, err := a.Open(ctx)
		if err != nil {
			return results.Sample{}, fmt.Errorf("open %s: %w", a.Name(), err)
		}

		defer func() {
			if clock != nil {
				clock.StopTimer()
			}

			if err := h.Close(); err != nil {
				logger.Warn("close handle", slog.String("error", err.Error()))
			}

			if clock != nil {
				clock.StartTimer()
			}
		}()

		for _, setup := range phases[:idx] {
			if _, err := d.phase(ctx, h, c, a.Name(), setup, logger); err != nil {
				return results.Sample{}, fmt.Errorf("setup phase %s: %w", setup, err)
			}
		}

		if clock != nil {
			clock.StartTimer()
		}

		return d.phase(ctx, h, c, a.Name(), phase, logger)
	}, nil
}

// Benchmark registers one sub-benchmark per case, adapter and phase.
// Each iteration runs a fresh trial body with the benchmark timer stopped
// around handle setup, teardown and earlier phases; the driver's own phase
// timing is reported as phase-ns/op alongside ns/op.
func (d *Driver) Benchmark(b *testing.B, cases []Case, adapters []engine.Adapter) {
	b.Helper()

	for _, c := range cases {
		for _, a := range adapters {
			for _, phase := range c.Phases() {
				b.Run(c.SampleName(a.Name(), phase), func(b *testing.B) {
					body, err := d.body(c, a, phase, b)
					if err != nil {
						b.Fatal(err)
					}

					var total float64
					items := 0

					for range b.N {
						sample, err := body(context.Background())
						if err != nil {
							b.Fatal(err)
						}

						total += float64(sample.Elapsed.Nanoseconds())
						items = sample.Items
					}

					b.ReportMetric(total/float64(b.N), "phase-ns/op")
					b.ReportMetric(float64(items), "items/op")
				})
			}
		}
	}
}
