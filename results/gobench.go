package results

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/perf/benchfmt"
)

var procsSuffix = regexp.MustCompile(`-\d+$`)

// loadGoBench reads Go benchmark text output. Names lose their
// "Benchmark" prefix and GOMAXPROCS suffix, so "BenchmarkTimely/join-8"
// becomes "Timely/join". A "phase-ns/op" metric, as reported by
// driver.Benchmark, takes precedence over ns/op; "items/op" becomes Items.
// Results without a time per op are skipped.
func loadGoBench(r io.Reader, fileName string, store *Store) error {
	reader := benchfmt.NewReader(r, fileName)

	for reader.Scan() {
		switch rec := reader.Result().(type) {
		case *benchfmt.SyntaxError:
			// Malformed lines are skipped, matching benchstat.
			continue

		case *benchfmt.Result:
			name := strings.TrimPrefix(string(rec.Name.Full()), "Benchmark")
			name = procsSuffix.ReplaceAllString(name, "")

			sample := Sample{Engine: EngineOf(name), Name: name}

			var opTime, phaseTime time.Duration
			timed, phased := false, false

			for _, v := range rec.Values {
				switch {
				case v.Unit == "sec/op":
					opTime = seconds(v.Value)
					timed = true
				case v.Unit == "ns/op":
					opTime = time.Duration(v.Value)
					timed = true
				case v.Unit == "phase-sec/op":
					phaseTime = seconds(v.Value)
					phased = true
				case v.Unit == "phase-ns/op":
					phaseTime = time.Duration(v.Value)
					phased = true
				case v.Unit == "items/op":
					sample.Items = int(v.Value)
				}
			}

			// Phase time leaves out setup phases that ran inside the loop.
			switch {
			case phased:
				sample.Elapsed = phaseTime
			case timed:
				sample.Elapsed = opTime
			default:
				continue
			}

			if err := store.Record(sample); err != nil {
				return err
			}
		}
	}

	if err := reader.Err(); err != nil {
		return fmt.Errorf("read %s: %w", fileName, err)
	}

	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
