package results

import (
	"math"
	"sort"
	"time"
)

// Stats summarizes the samples of one benchmark name.
type Stats struct {
	Name    string        `json:"benchmark_name"`
	Engine  string        `json:"engine"`
	Count   int           `json:"count"`
	Failed  int           `json:"failed"`
	Mean    time.Duration `json:"mean_ns"`
	Median  time.Duration `json:"median_ns"`
	StdErr  time.Duration `json:"std_error_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	// Throughput is the mean items per second, zero when no sample
	// reported items.
	Throughput float64 `json:"throughput_elements_per_sec,omitempty"`
}

// Summarize groups samples by name and computes per-name statistics over
// the successful samples, sorted by name. Names whose every sample failed
// are reported with Count zero.
func Summarize(samples []Sample) []Stats {
	byName := make(map[string][]Sample)
	order := make([]string, 0)

	for _, s := range samples {
		if _, ok := byName[s.Name]; !ok {
			order = append(order, s.Name)
		}

		byName[s.Name] = append(byName[s.Name], s)
	}

	sort.Strings(order)

	out := make([]Stats, 0, len(order))
	for _, name := range order {
		out = append(out, summarize(name, byName[name]))
	}

	return out
}

func summarize(name string, samples []Sample) Stats {
	st := Stats{Name: name, Engine: samples[0].Engine}

	elapsed := make([]float64, 0, len(samples))
	var tput []float64

	for _, s := range samples {
		if s.Failed {
			st.Failed++

			continue
		}

		elapsed = append(elapsed, float64(s.Elapsed))

		if t, ok := s.Throughput(); ok && s.Items > 0 {
			tput = append(tput, t)
		}
	}

	st.Count = len(elapsed)
	if st.Count == 0 {
		return st
	}

	sort.Float64s(elapsed)

	mean := meanOf(elapsed)
	st.Mean = time.Duration(mean)
	st.Min = time.Duration(elapsed[0])
	st.Max = time.Duration(elapsed[len(elapsed)-1])

	mid := len(elapsed) / 2
	if len(elapsed)%2 == 1 {
		st.Median = time.Duration(elapsed[mid])
	} else {
		st.Median = time.Duration((elapsed[mid-1] + elapsed[mid]) / 2)
	}

	if len(elapsed) > 1 {
		var ss float64
		for _, v := range elapsed {
			ss += (v - mean) * (v - mean)
		}

		sd := math.Sqrt(ss / float64(len(elapsed)-1))
		st.StdErr = time.Duration(sd / math.Sqrt(float64(len(elapsed))))
	}

	if len(tput) > 0 {
		st.Throughput = meanOf(tput)
	}

	return st
}

func meanOf(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}

	return sum / float64(len(vs))
}

// Extremes returns the fastest and slowest entries by mean elapsed time,
// ignoring entries with no successful samples. ok is false when there
// are none.
func Extremes(stats []Stats) (fastest, slowest Stats, ok bool) {
	for _, st := range stats {
		if st.Count == 0 {
			continue
		}

		if !ok {
			fastest, slowest, ok = st, st, true

			continue
		}

		if st.Mean < fastest.Mean {
			fastest = st
		}

		if st.Mean > slowest.Mean {
			slowest = st
		}
	}

	return fastest, slowest, ok
}
