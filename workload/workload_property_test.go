package workload

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_GraphShapes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("chain graph is exactly (i, i+1) for i < n-1", prop.ForAll(
		func(n int) bool {
			wl, err := ChainGraph(n)
			if err != nil || wl.Len() != n-1 {
				return false
			}

			for i, e := range wl.Edges() {
				if e.Src != NodeID(i) || e.Dst != NodeID(i+1) {
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 2000),
	))

	properties.Property("complete graph has n*(n-1) edges and no self-loops", prop.ForAll(
		func(n int) bool {
			wl, err := CompleteGraph(n)
			if err != nil || wl.Len() != n*(n-1) {
				return false
			}

			for _, e := range wl.Edges() {
				if e.Src == e.Dst {
					return false
				}
			}

			return true
		},
		gen.IntRange(0, 60),
	))

	properties.Property("tree edge count matches the closed form", prop.ForAll(
		func(depth, branching int) bool {
			wl, err := TreeGraph(depth, branching)
			if err != nil {
				return false
			}

			want := depth
			if branching > 1 {
				pow := 1
				for i := 0; i <= depth; i++ {
					pow *= branching
				}
				want = (pow - branching) / (branching - 1)
			}

			return wl.Len() == want
		},
		gen.IntRange(0, 5),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestProperty_Determinism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("random graph is reproducible for a seed", prop.ForAll(
		func(n, edges int, seed int64) bool {
			a, errA := RandomGraph(n, edges, seed)
			b, errB := RandomGraph(n, edges, seed)
			if errA != nil || errB != nil {
				return false
			}

			if a.Len() != edges {
				return false
			}

			for _, e := range a.Edges() {
				if int(e.Src) >= n || int(e.Dst) >= n {
					return false
				}
			}

			return slices.Equal(a.Updates(), b.Updates())
		},
		gen.IntRange(1, 500),
		gen.IntRange(0, 2000),
		gen.Int64(),
	))

	properties.Property("delta batches are reproducible for a seed", prop.ForAll(
		func(count, size int, seed int64) bool {
			base, err := RandomData(count, seed)
			if err != nil {
				return false
			}

			for _, mode := range []DeltaMode{DeltaUpdate, DeltaGrowth, DeltaChurn} {
				a, errA := Delta(base, size, mode, seed)
				b, errB := Delta(base, size, mode, seed)
				if errA != nil || errB != nil {
					return false
				}
				if !slices.Equal(a.Updates(), b.Updates()) {
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 300),
		gen.IntRange(0, 50),
		gen.Int64(),
	))

	properties.Property("keyed pairs cover every key at least count/numKeys times", prop.ForAll(
		func(count, numKeys int) bool {
			wl, err := KeyedPairs(count, numKeys)
			if err != nil {
				return false
			}

			counts := make([]int, numKeys)
			for _, r := range wl.Records() {
				if r.Key >= uint64(numKeys) {
					return false
				}
				counts[r.Key]++
			}

			for _, c := range counts {
				if c < count/numKeys {
					return false
				}
			}

			return true
		},
		gen.IntRange(0, 5000),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
